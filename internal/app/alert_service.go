package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"transit_notification_engine/internal/domain/alert"
	"transit_notification_engine/internal/domain/chart"
	"transit_notification_engine/internal/domain/transit"
	"transit_notification_engine/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// AlertService turns tracker transition events into alert records and hands
// them to channel adapters. The state machine's emit-once guarantee is the
// primary dedup defense; this service adds a per-user rate ceiling to dampen
// flapping when many transits resolve at once.
type AlertService struct {
	alertRepo       alert.Repository
	channels        []alert.Channel
	logger          *logrus.Logger
	deliveryTimeout time.Duration
	defaultCeiling  int // alerts per hour when user settings carry none

	mu       sync.Mutex
	limiters map[int64]*userLimiter
}

// userLimiter pairs a limiter with the ceiling it was built for, so a settings
// change is noticed on the next alert.
type userLimiter struct {
	ceiling int
	lim     *rate.Limiter
}

func NewAlertService(
	alertRepo alert.Repository,
	channels []alert.Channel,
	logger *logrus.Logger,
	deliveryTimeout time.Duration,
	defaultCeiling int,
) *AlertService {
	if defaultCeiling <= 0 {
		defaultCeiling = 10
	}
	return &AlertService{
		alertRepo:       alertRepo,
		channels:        channels,
		logger:          logger,
		deliveryTimeout: deliveryTimeout,
		defaultCeiling:  defaultCeiling,
		limiters:        make(map[int64]*userLimiter),
	}
}

// OnTransition persists one alert record for the event and delivers it.
// A rate-limited event is recorded as suppressed with a logged reason, never
// silently dropped. Delivery failures are recorded on the alert record and do
// not propagate back into detection.
func (s *AlertService) OnTransition(ctx context.Context, ev transit.Event, settings *chart.Settings) (*alert.Record, error) {
	rec := &alert.Record{
		ID:             uuid.New(),
		UserID:         ev.Key.UserID,
		TransitStateID: ev.StateID,
		EpisodeID:      ev.EpisodeID,
		Kind:           ev.Kind,
		Priority:       priorityFor(ev),
		Score:          ev.Score,
		LifeAreas:      ev.LifeAreas,
		Message:        formatMessage(ev),
		DeliveryStatus: alert.DeliveryPending,
	}

	if !s.limiter(ev.Key.UserID, settings).Allow() {
		rec.DeliveryStatus = alert.DeliverySuppressed
		rec.SuppressReason = "per-user alert rate ceiling reached"
		s.logger.WithFields(logrus.Fields{
			"user_id": ev.Key.UserID,
			"kind":    ev.Kind,
			"key":     ev.Key.String(),
		}).Warn("Alert suppressed: per-user rate ceiling reached")
		metrics.RecordSuppressed()
		if err := s.alertRepo.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to persist suppressed alert: %w", err)
		}
		return rec, nil
	}

	if err := s.alertRepo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist alert record: %w", err)
	}
	metrics.RecordAlert(string(ev.Kind))

	s.deliver(ctx, rec)
	return rec, nil
}

// deliver hands the record to every channel adapter. The record ends up
// DELIVERED only if all channels accepted it.
func (s *AlertService) deliver(ctx context.Context, rec *alert.Record) {
	status := alert.DeliveryDelivered
	for _, ch := range s.channels {
		chCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
		err := ch.Deliver(chCtx, rec)
		cancel()
		if err != nil {
			status = alert.DeliveryFailed
			metrics.RecordDeliveryFailure(ch.Name())
			s.logger.WithFields(logrus.Fields{
				"user_id":  rec.UserID,
				"channel":  ch.Name(),
				"alert_id": rec.ID,
			}).Errorf("Channel delivery failed: %v", err)
		}
	}

	rec.DeliveryStatus = status
	rec.DeliveredAt = time.Now()
	if err := s.alertRepo.UpdateDelivery(ctx, rec); err != nil {
		s.logger.Errorf("Failed to update delivery status for alert %s: %v", rec.ID, err)
	}
}

// limiter returns the per-user rate limiter, rebuilding it whenever the
// configured ceiling differs from the one it was created with. The rebuild
// refills the burst, which is acceptable for a settings edit.
func (s *AlertService) limiter(userID int64, settings *chart.Settings) *rate.Limiter {
	ceiling := s.defaultCeiling
	if settings != nil && settings.AlertCeilingPerHour > 0 {
		ceiling = settings.AlertCeilingPerHour
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ul, ok := s.limiters[userID]; ok && ul.ceiling == ceiling {
		return ul.lim
	}
	ul := &userLimiter{
		ceiling: ceiling,
		lim:     rate.NewLimiter(rate.Limit(float64(ceiling)/3600.0), ceiling),
	}
	s.limiters[userID] = ul
	return ul.lim
}

// priorityFor ranks an event: exactness outranks any score, then the strength
// score decides.
func priorityFor(ev transit.Event) alert.Priority {
	if ev.Kind == transit.TransitionReachedExact {
		return alert.PriorityHigh
	}
	if ev.Score >= 70 {
		return alert.PriorityMedium
	}
	return alert.PriorityLow
}

func formatMessage(ev transit.Event) string {
	verb := map[transit.TransitionKind]string{
		transit.TransitionEnteredApproaching: "is approaching",
		transit.TransitionReachedExact:       "is now exact",
		transit.TransitionEnteredSeparating:  "is separating",
		transit.TransitionReturnedInactive:   "has passed",
	}[ev.Kind]

	msg := fmt.Sprintf("%s %s %s %s (strength %d)",
		ev.Key.Moving, strings.ToLower(string(ev.Key.Aspect)), ev.Key.Reference, verb, ev.Score)
	if len(ev.LifeAreas) > 0 {
		msg += "; areas: " + strings.Join(ev.LifeAreas, ", ")
	}
	return msg
}
