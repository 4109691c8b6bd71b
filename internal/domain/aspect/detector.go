package aspect

import (
	"math"
	"time"

	"transit_notification_engine/internal/domain/ephemeris"
)

// DefaultExactnessEpsilon is the tolerance, in degrees, within which a
// separation counts as exact.
const DefaultExactnessEpsilon = 0.1

// Motion classifies how a candidate's separation is evolving between two
// consecutive measurements.
type Motion string

const (
	MotionApplying   Motion = "APPLYING"
	MotionSeparating Motion = "SEPARATING"
	MotionExact      Motion = "EXACT"
)

// Candidate is one detected in-orb relationship between a moving body and a
// reference point. Candidates are ephemeral: recomputed on every tick and never
// persisted directly.
type Candidate struct {
	Moving     ephemeris.BodyID
	Reference  ephemeris.BodyID
	Aspect     Aspect
	Timestamp  time.Time
	Separation float64 // measured minimal angular separation in degrees
	Delta      float64 // signed separation minus target angle
	Orb        float64 // effective orb used for the match
	Motion     Motion
}

// DistanceToExact is the absolute distance from the target angle.
func (c Candidate) DistanceToExact() float64 {
	return math.Abs(c.Delta)
}

// DetectConfig carries the tunables for a single detection pass.
type DetectConfig struct {
	ExactnessEpsilon float64
	OrbOverrides     map[Aspect]float64
}

// Separation computes the minimal angular separation between two longitudes:
// min(|a-b|, 360-|a-b|), always in [0,180].
func Separation(a, b float64) float64 {
	diff := math.Abs(a - b)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// Detect tests a (moving, reference) pair against every aspect definition and
// returns all in-orb matches in canonical aspect order. A wide orb overlapping
// two adjacent target angles legitimately yields multiple candidates; relevance
// is decided downstream by the scorer and the tracker.
//
// prevSeparation is the separation measured one tick earlier, or NaN when no
// prior measurement exists. Decreasing distance-to-exact means applying,
// increasing means separating; within epsilon of the target the candidate is
// exact regardless of direction. A first observation with no history defaults
// to applying.
func Detect(moving, reference ephemeris.Position, prevSeparation float64, cfg DetectConfig) []Candidate {
	epsilon := cfg.ExactnessEpsilon
	if epsilon <= 0 {
		epsilon = DefaultExactnessEpsilon
	}

	d := Separation(moving.Longitude, reference.Longitude)

	var out []Candidate
	for _, def := range All {
		orb := OrbFor(def.Aspect, cfg.OrbOverrides)
		delta := d - def.Angle
		if math.Abs(delta) > orb {
			continue
		}

		motion := MotionApplying
		switch {
		case math.Abs(delta) <= epsilon:
			motion = MotionExact
		case !math.IsNaN(prevSeparation):
			prevDist := math.Abs(prevSeparation - def.Angle)
			if math.Abs(delta) >= prevDist {
				motion = MotionSeparating
			}
		}

		out = append(out, Candidate{
			Moving:     moving.Body,
			Reference:  reference.Body,
			Aspect:     def.Aspect,
			Timestamp:  moving.Timestamp,
			Separation: d,
			Delta:      delta,
			Orb:        orb,
			Motion:     motion,
		})
	}
	return out
}
