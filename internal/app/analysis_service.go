package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/chart"
	"transit_notification_engine/internal/domain/ephemeris"
	"transit_notification_engine/internal/domain/scoring"
	"transit_notification_engine/internal/domain/transit"
	"transit_notification_engine/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// ErrMonitoringDisabled is returned when an evaluation is requested for a user
// whose monitoring is switched off.
var ErrMonitoringDisabled = fmt.Errorf("monitoring disabled for user")

// PositionSource is the position lookup the analysis depends on; satisfied by
// the bucketing position cache.
type PositionSource interface {
	Get(ctx context.Context, body ephemeris.BodyID, ts time.Time) (ephemeris.Position, error)
}

// ResultCache memoizes whole analysis results per (user, time bucket);
// satisfied by the LRU analysis cache.
type ResultCache interface {
	GetOrCompute(ctx context.Context, userID int64, bucket time.Time, compute func(ctx context.Context) (interface{}, error)) (interface{}, error)
	Invalidate(userID int64, bucket time.Time)
}

// AnalysisResult is the outcome of one user evaluation tick.
type AnalysisResult struct {
	UserID       int64
	Bucket       time.Time
	EvaluatedAt  time.Time
	Candidates   []aspect.Candidate
	Events       []transit.Event
	SkippedPairs int // pairs not evaluated because a position was unavailable
}

// AnalysisService is the synchronous evaluation entry point used by both the
// scheduler and on-demand "check now" requests.
type AnalysisService struct {
	charts      chart.Store
	positions   PositionSource
	resultCache ResultCache
	transitRepo transit.Repository
	alerts      *AlertService
	logger      *logrus.Logger

	weights         scoring.Weights
	epsilon         float64
	bucket          time.Duration // analysis cache bucket, the poll interval
	providerTimeout time.Duration
}

func NewAnalysisService(
	charts chart.Store,
	positions PositionSource,
	resultCache ResultCache,
	transitRepo transit.Repository,
	alerts *AlertService,
	logger *logrus.Logger,
	weights scoring.Weights,
	epsilon float64,
	bucket time.Duration,
	providerTimeout time.Duration,
) (*AnalysisService, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if bucket <= 0 {
		return nil, fmt.Errorf("analysis bucket must be positive, got %s", bucket)
	}
	return &AnalysisService{
		charts:      charts,
		positions:   positions,
		resultCache: resultCache,
		transitRepo: transitRepo,
		alerts:      alerts,
		logger:      logger,

		weights:         weights,
		epsilon:         epsilon,
		bucket:          bucket,
		providerTimeout: providerTimeout,
	}, nil
}

// EvaluateUser runs (or returns the memoized) analysis for the time bucket the
// timestamp falls into. Concurrent calls for the same (user, bucket) collapse
// to one computation; alert dispatch happens inside that single computation,
// so a cache hit can never re-fire alerts.
func (s *AnalysisService) EvaluateUser(ctx context.Context, userID int64, ts time.Time) (*AnalysisResult, error) {
	if err := ephemeris.ValidateTimestamp(ts); err != nil {
		return nil, err
	}

	bucket := ts.Truncate(s.bucket)
	value, err := s.resultCache.GetOrCompute(ctx, userID, bucket, func(ctx context.Context) (interface{}, error) {
		return s.evaluate(ctx, userID, bucket)
	})
	if err != nil {
		return nil, err
	}
	return value.(*AnalysisResult), nil
}

// ActiveTransits is the read model for report rendering: the user's currently
// in-orb transit states.
func (s *AnalysisService) ActiveTransits(ctx context.Context, userID int64) ([]*transit.State, error) {
	return s.transitRepo.ListActiveByUser(ctx, userID)
}

func (s *AnalysisService) evaluate(ctx context.Context, userID int64, ts time.Time) (*AnalysisResult, error) {
	started := time.Now()
	defer func() { metrics.ObserveEvaluation(time.Since(started)) }()

	settings, err := s.charts.Settings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}
	if !settings.Enabled {
		return nil, ErrMonitoringDisabled
	}

	points, err := s.charts.ReferencePoints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load natal chart for user %d: %w", userID, err)
	}

	states, err := s.transitRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transit states for user %d: %w", userID, err)
	}
	stateByKey := make(map[transit.Key]*transit.State, len(states))
	for _, st := range states {
		stateByKey[st.Key()] = st
	}

	result := &AnalysisResult{UserID: userID, Bucket: ts, EvaluatedAt: time.Now()}
	detectCfg := aspect.DetectConfig{ExactnessEpsilon: s.epsilon, OrbOverrides: settings.OrbOverrides}

	// States advance in memory only during detection; persistence and alert
	// dispatch happen together in the flush below. A tick that dies before the
	// flush leaves no durable phase change behind, so no observed transition
	// can become durable without its alert.
	type pendingState struct {
		st     *transit.State
		events []transit.Event
	}
	var pending []pendingState

	// Fixed iteration order (moving bodies, then reference points, then
	// aspects) keeps event emission deterministic for identical snapshots.
	for _, moving := range ephemeris.MovingBodies {
		pos, err := s.fetchPosition(ctx, moving, ts)
		if err != nil {
			// Skip affected pairs only; the tracker simply does not
			// advance for them until data is available again.
			s.logger.WithFields(logrus.Fields{"user_id": userID, "body": moving}).
				Warnf("Position unavailable, skipping pairs: %v", err)
			result.SkippedPairs += len(points)
			continue
		}

		for _, point := range points {
			refPos := ephemeris.Position{
				Body:      point.Body.ID,
				Timestamp: ts,
				Longitude: point.Longitude,
			}

			prevSep := previousSeparation(stateByKey, userID, moving, point.Body.ID)
			pairSep := aspect.Separation(pos.Longitude, refPos.Longitude)
			candidates := aspect.Detect(pos, refPos, prevSep, detectCfg)
			result.Candidates = append(result.Candidates, candidates...)

			byAspect := make(map[aspect.Aspect]*aspect.Candidate, len(candidates))
			for i := range candidates {
				byAspect[candidates[i].Aspect] = &candidates[i]
			}

			for _, def := range aspect.All {
				key := transit.Key{UserID: userID, Moving: moving, Reference: point.Body.ID, Aspect: def.Aspect}
				candidate := byAspect[def.Aspect]
				st := stateByKey[key]

				if st == nil {
					if candidate == nil {
						continue // never tracked, still out of orb
					}
					st = &transit.State{
						UserID:    userID,
						Moving:    moving,
						Reference: point.Body.ID,
						Aspect:    def.Aspect,
						Phase:     transit.PhaseInactive,
					}
					stateByKey[key] = st
				}

				obs := transit.Observation{Candidate: candidate, Separation: pairSep, Timestamp: ts}
				if candidate != nil {
					score, areas := scoring.Score(*candidate, point.Body.SignificanceWeight(), s.weights)
					obs.Score = score
					obs.LifeAreas = areas
				}

				pending = append(pending, pendingState{st: st, events: transit.Observe(st, obs)})
			}
		}
	}

	// A cancelled tick discards everything computed so far; nothing has been
	// persisted and no alert record has been written.
	if err := ctx.Err(); err != nil {
		s.resultCache.Invalidate(userID, ts)
		return nil, fmt.Errorf("evaluation cancelled for user %d: %w", userID, err)
	}

	// Flush per key: persist the state, alert its transitions, then archive a
	// completed episode. A persistence failure stops the flush; keys not yet
	// flushed keep their durable pre-tick phase and re-emit next evaluation.
	for _, p := range pending {
		if p.st.ID == 0 {
			if err := s.transitRepo.Create(ctx, p.st); err != nil {
				return nil, fmt.Errorf("failed to create transit state %s: %w", p.st.Key(), err)
			}
		} else if err := s.transitRepo.Update(ctx, p.st); err != nil {
			return nil, fmt.Errorf("failed to update transit state %s: %w", p.st.Key(), err)
		}

		for i := range p.events {
			p.events[i].StateID = p.st.ID
			if _, err := s.alerts.OnTransition(ctx, p.events[i], settings); err != nil {
				// Alerting trouble must not corrupt detection state; log and
				// continue with the remaining events.
				s.logger.Errorf("Failed to process transition %s for %s: %v", p.events[i].Kind, p.events[i].Key, err)
			}
		}
		result.Events = append(result.Events, p.events...)

		if p.st.Phase == transit.PhaseInactive && len(p.events) > 0 {
			// Episode just completed: copy it to the archive and clear the
			// episode fields.
			if err := s.transitRepo.ArchiveEpisode(ctx, p.st, ts); err != nil {
				return nil, fmt.Errorf("failed to archive episode for %s: %w", p.st.Key(), err)
			}
		}
	}

	return result, nil
}

// fetchPosition applies the provider timeout and a single retry. After the
// retry fails the affected pairs are skipped for this tick.
func (s *AnalysisService) fetchPosition(ctx context.Context, body ephemeris.BodyID, ts time.Time) (ephemeris.Position, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lookupCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		pos, err := s.positions.Get(lookupCtx, body, ts)
		cancel()
		if err == nil {
			return pos, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ephemeris.ErrInvalidTimestamp) {
			break // cancellation and bad input are not retryable
		}
	}
	return ephemeris.Position{}, lastErr
}

// previousSeparation recovers the pair's separation from the prior tick out of
// whichever tracked state for the pair was updated most recently. NaN when the
// pair has no measured history.
func previousSeparation(states map[transit.Key]*transit.State, userID int64, moving, reference ephemeris.BodyID) float64 {
	prev := math.NaN()
	var newest time.Time
	for _, def := range aspect.All {
		st, ok := states[transit.Key{UserID: userID, Moving: moving, Reference: reference, Aspect: def.Aspect}]
		if !ok || !st.LastSeparation.Valid {
			continue
		}
		if st.LastEvaluatedAt.After(newest) {
			newest = st.LastEvaluatedAt
			prev = st.LastSeparation.Float64
		}
	}
	return prev
}
