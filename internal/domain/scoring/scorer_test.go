package scoring

import (
	"math"
	"testing"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/ephemeris"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(a aspect.Aspect, delta, orb float64) aspect.Candidate {
	return aspect.Candidate{
		Moving:    ephemeris.BodyMars,
		Reference: "NATAL_SUN",
		Aspect:    a,
		Timestamp: time.Unix(1700000000, 0),
		Delta:     delta,
		Orb:       orb,
	}
}

func TestScoreExactConjunctionMaxes(t *testing.T) {
	c := candidate(aspect.Conjunction, 0, 8)
	score, _ := Score(c, 1.0, DefaultWeights)
	assert.Equal(t, 100, score)
}

func TestScoreMonotoneInDelta(t *testing.T) {
	prev := 101
	for _, delta := range []float64{0, 0.5, 1, 2, 4, 6, 7} {
		score, _ := Score(candidate(aspect.Square, delta, 7), 0.7, DefaultWeights)
		assert.LessOrEqual(t, score, prev, "score must not increase as delta grows (delta=%f)", delta)
		prev = score
	}
}

func TestScoreClampsClosenessAtOrbBoundary(t *testing.T) {
	// At the orb boundary the closeness term contributes nothing; only body
	// and aspect weights remain.
	score, _ := Score(candidate(aspect.Square, 7, 7), 0.8, DefaultWeights)
	want := int(math.Round((0.25*0.8 + 0.25*0.9) * 100))
	assert.Equal(t, want, score)
}

func TestScoreLifeAreaTags(t *testing.T) {
	_, tags := Score(candidate(aspect.Square, 1, 7), 0.7, DefaultWeights)
	// Square contributes challenge+action, Mars contributes action+conflict;
	// the shared tag is deduplicated.
	assert.Equal(t, []string{"challenge", "action", "conflict"}, tags)
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights.Validate())

	bad := Weights{OrbCloseness: 0.5, BodySignificance: 0.5, AspectWeight: 0.5}
	assert.Error(t, bad.Validate())

	negative := Weights{OrbCloseness: -0.1, BodySignificance: 0.6, AspectWeight: 0.5}
	assert.Error(t, negative.Validate())
}
