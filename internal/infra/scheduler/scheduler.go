package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"transit_notification_engine/internal/app"
	"transit_notification_engine/internal/domain/chart"
	"transit_notification_engine/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Evaluator runs one user analysis tick; satisfied by app.AnalysisService.
type Evaluator interface {
	EvaluateUser(ctx context.Context, userID int64, ts time.Time) (*app.AnalysisResult, error)
}

// EpisodePurger deletes archived episodes past their retention; satisfied by
// the postgres transit repository.
type EpisodePurger interface {
	PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper lets the scheduler trigger cache housekeeping without depending on
// the concrete cache type.
type Sweeper interface {
	Sweep() int
}

// SweepScheduler drives one evaluation tick per monitored user at the poll
// cadence. Ticks across users run in parallel bounded by the worker count; an
// overlapping tick for the same user is rejected, not queued, so state updates
// for a key never arrive out of order.
type SweepScheduler struct {
	cronEngine *cron.Cron
	analysis   Evaluator
	charts     chart.Store
	episodes   EpisodePurger
	caches     []Sweeper
	logger     *logrus.Logger

	pollInterval time.Duration
	workerCount  int
	gracePeriod  time.Duration

	mu       sync.Mutex
	inFlight map[int64]bool
}

func NewSweepScheduler(
	analysis Evaluator,
	charts chart.Store,
	episodes EpisodePurger,
	caches []Sweeper,
	logger *logrus.Logger,
	pollInterval time.Duration,
	workerCount int,
	gracePeriod time.Duration,
) *SweepScheduler {
	return &SweepScheduler{
		cronEngine:   cron.New(cron.WithLocation(time.UTC)),
		analysis:     analysis,
		charts:       charts,
		episodes:     episodes,
		caches:       caches,
		logger:       logger,
		pollInterval: pollInterval,
		workerCount:  workerCount,
		gracePeriod:  gracePeriod,
		inFlight:     make(map[int64]bool),
	}
}

// Start registers the sweep and housekeeping jobs and starts the cron engine.
func (s *SweepScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc("@every "+s.pollInterval.String(), s.runSweep); err != nil {
		return err
	}
	if _, err := s.cronEngine.AddFunc("@every 1h", s.runHousekeeping); err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.Infof("Sweep scheduler started: interval %s, %d workers", s.pollInterval, s.workerCount)
	return nil
}

// runSweep evaluates every monitored user once. A failure in one user's tick
// never blocks another's: errors are logged per user and the group always
// drains.
func (s *SweepScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
	defer cancel()

	userIDs, err := s.charts.MonitoredUserIDs(ctx)
	if err != nil {
		s.logger.Errorf("Sweep aborted, could not list monitored users: %v", err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	now := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(s.workerCount)

	for _, userID := range userIDs {
		userID := userID
		if !s.tryAcquire(userID) {
			// Previous tick for this user still running; reject rather
			// than queue to keep per-key updates ordered.
			s.logger.WithField("user_id", userID).Warn("Tick still in flight, skipping this cadence")
			metrics.RecordTick("skipped_overlap")
			continue
		}
		g.Go(func() error {
			defer s.release(userID)
			_, err := s.analysis.EvaluateUser(ctx, userID, now)
			switch {
			case err == nil:
				metrics.RecordTick("ok")
			case errors.Is(err, app.ErrMonitoringDisabled):
				metrics.RecordTick("skipped_disabled")
			default:
				metrics.RecordTick("error")
				s.logger.WithField("user_id", userID).Errorf("Tick failed: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// runHousekeeping purges archived episodes past the grace period and sweeps
// expired cache entries.
func (s *SweepScheduler) runHousekeeping() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.gracePeriod)
	purged, err := s.episodes.PurgeArchivedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Errorf("Episode retention sweep failed: %v", err)
	} else if purged > 0 {
		s.logger.Infof("Episode retention sweep removed %d archived episodes", purged)
	}

	for _, c := range s.caches {
		c.Sweep()
	}
}

func (s *SweepScheduler) tryAcquire(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[userID] {
		return false
	}
	s.inFlight[userID] = true
	return true
}

func (s *SweepScheduler) release(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}

// Stop halts the cron engine and waits for running jobs to finish.
func (s *SweepScheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Sweep scheduler stopped")
}
