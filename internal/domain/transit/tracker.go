package transit

import (
	"database/sql"
	"time"

	"transit_notification_engine/internal/domain/aspect"

	"github.com/google/uuid"
)

// Observation is one tick's detector output for a single tracked key.
// Candidate is nil when the pair measured out of orb this tick; Separation is
// the measured pair separation either way, so motion classification on the
// next tick never compares against a stale in-orb reading.
type Observation struct {
	Candidate  *aspect.Candidate
	Separation float64 // measured pair separation this tick, in degrees
	Score      int
	LifeAreas  []string
	Timestamp  time.Time
}

// Observe advances the state machine by one tick and returns the transition
// events it produced (zero or one). The caller owns st for the duration of the
// tick; no other tick may touch the same key concurrently.
//
// Transition rules:
//
//	INACTIVE    -> APPROACHING  on first entering orb
//	INACTIVE    -> EXACT        when the first in-orb observation is already
//	                            within epsilon (emits a single exact event)
//	APPROACHING -> EXACT        when distance to target drops within epsilon
//	APPROACHING -> INACTIVE     when the body reverses out of orb before
//	                            exactness (no exact event is emitted)
//	EXACT       -> SEPARATING   when separation moves back outside epsilon
//	SEPARATING  -> APPROACHING  when a retrograde station turns the transit
//	                            applying again inside orb (second exact pass)
//	SEPARATING  -> INACTIVE     when the separation leaves orb
//
// Re-observing an unchanged phase updates bookkeeping fields but emits nothing,
// which makes tick replay idempotent.
func Observe(st *State, obs Observation) []Event {
	prevPhase := st.Phase
	next := nextPhase(prevPhase, obs.Candidate)

	st.LastEvaluatedAt = obs.Timestamp
	st.LastSeparation = sql.NullFloat64{Float64: obs.Separation, Valid: true}
	if obs.Candidate != nil {
		st.LastScore = obs.Score
	}

	if next == prevPhase {
		return nil
	}
	st.Phase = next

	switch next {
	case PhaseApproaching:
		if prevPhase == PhaseInactive {
			st.EpisodeID = uuid.New()
			st.FirstEnteredAt = sql.NullTime{Time: obs.Timestamp, Valid: true}
			st.ExactAt = sql.NullTime{}
		}
		// SEPARATING -> APPROACHING keeps the episode: same orb window,
		// second exact pass.
		return []Event{st.event(TransitionEnteredApproaching, obs)}
	case PhaseExact:
		if prevPhase == PhaseInactive {
			st.EpisodeID = uuid.New()
			st.FirstEnteredAt = sql.NullTime{Time: obs.Timestamp, Valid: true}
		}
		st.ExactAt = sql.NullTime{Time: obs.Timestamp, Valid: true}
		return []Event{st.event(TransitionReachedExact, obs)}
	case PhaseSeparating:
		return []Event{st.event(TransitionEnteredSeparating, obs)}
	case PhaseInactive:
		// No candidate this tick; report the last known score.
		ev := st.event(TransitionReturnedInactive, obs)
		ev.Score = st.LastScore
		return []Event{ev}
	}
	return nil
}

// nextPhase maps (current phase, observation) to the phase after this tick.
func nextPhase(current Phase, c *aspect.Candidate) Phase {
	if c == nil {
		// Out of orb: any active phase collapses to inactive.
		return PhaseInactive
	}
	if c.Motion == aspect.MotionExact {
		return PhaseExact
	}
	switch current {
	case PhaseInactive:
		return PhaseApproaching
	case PhaseApproaching:
		// Momentary direction wobble inside orb does not demote an approach;
		// the phase only resolves at exactness or on leaving orb.
		return PhaseApproaching
	case PhaseExact:
		return PhaseSeparating
	case PhaseSeparating:
		if c.Motion == aspect.MotionApplying {
			return PhaseApproaching
		}
		return PhaseSeparating
	}
	return current
}

func (s *State) event(kind TransitionKind, obs Observation) Event {
	return Event{
		Key:       s.Key(),
		StateID:   s.ID,
		EpisodeID: s.EpisodeID,
		Kind:      kind,
		Timestamp: obs.Timestamp,
		Score:     obs.Score,
		LifeAreas: obs.LifeAreas,
	}
}
