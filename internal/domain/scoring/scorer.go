package scoring

import (
	"fmt"
	"math"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/ephemeris"
)

// Weights are the component multipliers of the strength score. They must sum
// to 1 so the combined score stays on the 0..100 scale.
type Weights struct {
	OrbCloseness     float64
	BodySignificance float64
	AspectWeight     float64
}

// DefaultWeights favors orb closeness: a transit one arc-minute from exact
// matters more than a heavy body loitering at the edge of orb.
var DefaultWeights = Weights{
	OrbCloseness:     0.5,
	BodySignificance: 0.25,
	AspectWeight:     0.25,
}

// Validate rejects weight sets that do not sum to 1 (within float tolerance)
// or contain components outside [0,1].
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"orb_closeness":     w.OrbCloseness,
		"body_significance": w.BodySignificance,
		"aspect_weight":     w.AspectWeight,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("score weight %s out of range [0,1]: %f", name, v)
		}
	}
	sum := w.OrbCloseness + w.BodySignificance + w.AspectWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %f", sum)
	}
	return nil
}

// lifeAreasByAspect tags each relationship type with the life areas it is
// conventionally read against. Loaded once; never mutated at runtime.
var lifeAreasByAspect = map[aspect.Aspect][]string{
	aspect.Conjunction:    {"identity", "new-beginnings"},
	aspect.Sextile:        {"opportunity", "communication"},
	aspect.Square:         {"challenge", "action"},
	aspect.Trine:          {"flow", "creativity"},
	aspect.Opposition:     {"relationships", "awareness"},
	aspect.Semisextile:    {"adjustment"},
	aspect.Semisquare:     {"friction"},
	aspect.Sesquiquadrate: {"friction"},
	aspect.Quincunx:       {"adjustment", "health"},
}

var lifeAreasByBody = map[ephemeris.BodyID][]string{
	ephemeris.BodySun:     {"vitality"},
	ephemeris.BodyMoon:    {"emotions", "home"},
	ephemeris.BodyMercury: {"communication", "work"},
	ephemeris.BodyVenus:   {"relationships", "finances"},
	ephemeris.BodyMars:    {"action", "conflict"},
	ephemeris.BodyJupiter: {"growth", "finances"},
	ephemeris.BodySaturn:  {"career", "discipline"},
	ephemeris.BodyUranus:  {"change"},
	ephemeris.BodyNeptune: {"spirituality"},
	ephemeris.BodyPluto:   {"transformation"},
}

// Score converts orb distance plus body and aspect weights into a 0..100
// significance score and the candidate's life-area tags. Pure: same inputs
// always produce the same outputs.
func Score(c aspect.Candidate, bodyWeight float64, w Weights) (int, []string) {
	closeness := 0.0
	if c.Orb > 0 {
		closeness = 1 - c.DistanceToExact()/c.Orb
		if closeness < 0 {
			closeness = 0
		}
	}

	aspectWeight := 0.5
	if def, ok := aspect.Lookup(c.Aspect); ok {
		aspectWeight = def.Weight
	}

	combined := w.OrbCloseness*closeness + w.BodySignificance*bodyWeight + w.AspectWeight*aspectWeight
	score := int(math.Round(combined * 100))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return score, lifeAreaTags(c)
}

// lifeAreaTags merges aspect and moving-body tags, deduplicated, preserving
// aspect tags first for stable ordering.
func lifeAreaTags(c aspect.Candidate) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, t := range lifeAreasByAspect[c.Aspect] {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, t := range lifeAreasByBody[c.Moving] {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}
