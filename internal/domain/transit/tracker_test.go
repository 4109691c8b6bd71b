package transit

import (
	"testing"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/ephemeris"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *State {
	return &State{
		ID:        1,
		UserID:    42,
		Moving:    ephemeris.BodySaturn,
		Reference: "NATAL_SUN",
		Aspect:    aspect.Square,
		Phase:     PhaseInactive,
	}
}

func observation(motion aspect.Motion, distance float64, ts time.Time) Observation {
	return Observation{
		Candidate: &aspect.Candidate{
			Moving:     ephemeris.BodySaturn,
			Reference:  "NATAL_SUN",
			Aspect:     aspect.Square,
			Timestamp:  ts,
			Separation: 90 + distance,
			Delta:      distance,
			Orb:        1.0,
			Motion:     motion,
		},
		Separation: 90 + distance,
		Score:      80,
		Timestamp:  ts,
	}
}

func outOfOrb(ts time.Time) Observation {
	return Observation{Candidate: nil, Separation: 78, Timestamp: ts}
}

func TestFullLifecycleEmitsOneEventPerTransition(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	events := Observe(st, observation(aspect.MotionApplying, 0.8, t0))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionEnteredApproaching, events[0].Kind)
	assert.Equal(t, PhaseApproaching, st.Phase)
	assert.NotEqual(t, uuid.Nil, st.EpisodeID)
	assert.True(t, st.FirstEnteredAt.Valid)
	assert.False(t, st.ExactAt.Valid)
	episode := st.EpisodeID

	events = Observe(st, observation(aspect.MotionExact, 0.05, t0.Add(5*time.Minute)))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionReachedExact, events[0].Kind)
	assert.Equal(t, episode, events[0].EpisodeID)
	assert.True(t, st.ExactAt.Valid)

	events = Observe(st, observation(aspect.MotionSeparating, 0.4, t0.Add(10*time.Minute)))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionEnteredSeparating, events[0].Kind)

	events = Observe(st, outOfOrb(t0.Add(15*time.Minute)))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionReturnedInactive, events[0].Kind)
	assert.Equal(t, PhaseInactive, st.Phase)
	// The closing event still carries the last known strength score.
	assert.Equal(t, 80, events[0].Score)
}

func TestReplayedTickEmitsNothing(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	obs := observation(aspect.MotionApplying, 0.8, t0)
	events := Observe(st, obs)
	require.Len(t, events, 1)

	// Identical observation again (retry of the same tick): no new events.
	events = Observe(st, obs)
	assert.Empty(t, events)

	// Same for the exact phase.
	exact := observation(aspect.MotionExact, 0.05, t0.Add(5*time.Minute))
	require.Len(t, Observe(st, exact), 1)
	assert.Empty(t, Observe(st, exact))
}

func TestFirstObservationAlreadyExactEmitsSingleEvent(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	events := Observe(st, observation(aspect.MotionExact, 0.05, t0))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionReachedExact, events[0].Kind)
	assert.Equal(t, PhaseExact, st.Phase)
	assert.NotEqual(t, uuid.Nil, st.EpisodeID)
	assert.True(t, st.FirstEnteredAt.Valid)
	assert.True(t, st.ExactAt.Valid)
}

func TestReversalBeforeExactnessEmitsNoExactEvent(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	require.Len(t, Observe(st, observation(aspect.MotionApplying, 0.8, t0)), 1)

	// Retrograde reversal carries the body straight out of orb.
	events := Observe(st, outOfOrb(t0.Add(5*time.Minute)))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionReturnedInactive, events[0].Kind)
	assert.False(t, st.ExactAt.Valid, "no exactness was ever reached")
}

func TestDirectionWobbleInsideOrbDoesNotDemoteApproach(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	require.Len(t, Observe(st, observation(aspect.MotionApplying, 0.8, t0)), 1)
	// A momentary separating reading inside orb keeps the approach phase.
	assert.Empty(t, Observe(st, observation(aspect.MotionSeparating, 0.9, t0.Add(5*time.Minute))))
	assert.Equal(t, PhaseApproaching, st.Phase)
}

func TestRetrogradeSecondPassAlertsAgain(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)
	tick := func(i int) time.Time { return t0.Add(time.Duration(i) * 5 * time.Minute) }

	require.Len(t, Observe(st, observation(aspect.MotionApplying, 0.8, tick(0))), 1)
	require.Len(t, Observe(st, observation(aspect.MotionExact, 0.05, tick(1))), 1)
	require.Len(t, Observe(st, observation(aspect.MotionSeparating, 0.4, tick(2))), 1)
	episode := st.EpisodeID

	// Station: the transit starts applying again without leaving orb.
	events := Observe(st, observation(aspect.MotionApplying, 0.3, tick(3)))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionEnteredApproaching, events[0].Kind)
	assert.Equal(t, episode, st.EpisodeID, "second pass stays within the same orb-window episode")

	// Second exact pass alerts independently.
	events = Observe(st, observation(aspect.MotionExact, 0.02, tick(4)))
	require.Len(t, events, 1)
	assert.Equal(t, TransitionReachedExact, events[0].Kind)
}

func TestOutOfOrbObservationStillRecordsSeparation(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	require.Len(t, Observe(st, observation(aspect.MotionApplying, 0.8, t0)), 1)

	// The measured separation is bookkept even when the pair left orb, so the
	// next tick's motion classification never sees a reading two ticks old.
	Observe(st, outOfOrb(t0.Add(5*time.Minute)))
	require.True(t, st.LastSeparation.Valid)
	assert.Equal(t, 78.0, st.LastSeparation.Float64)
	assert.Equal(t, t0.Add(5*time.Minute), st.LastEvaluatedAt)
}

func TestInactiveOutOfOrbStaysSilent(t *testing.T) {
	st := newState()
	events := Observe(st, outOfOrb(time.Unix(1700000000, 0)))
	assert.Empty(t, events)
	assert.Equal(t, PhaseInactive, st.Phase)
}

func TestAtMostOneExactPerApproachSegment(t *testing.T) {
	st := newState()
	t0 := time.Unix(1700000000, 0)

	var kinds []TransitionKind
	sequence := []Observation{
		observation(aspect.MotionApplying, 0.8, t0),
		observation(aspect.MotionApplying, 0.5, t0.Add(5*time.Minute)),
		observation(aspect.MotionExact, 0.05, t0.Add(10*time.Minute)),
		observation(aspect.MotionExact, 0.01, t0.Add(15*time.Minute)),
		observation(aspect.MotionSeparating, 0.4, t0.Add(20*time.Minute)),
		outOfOrb(t0.Add(25 * time.Minute)),
	}
	for _, obs := range sequence {
		for _, ev := range Observe(st, obs) {
			kinds = append(kinds, ev.Kind)
		}
	}

	assert.Equal(t, []TransitionKind{
		TransitionEnteredApproaching,
		TransitionReachedExact,
		TransitionEnteredSeparating,
		TransitionReturnedInactive,
	}, kinds)
}
