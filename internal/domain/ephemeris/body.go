package ephemeris

import (
	"math"
	"time"
)

// BodyCategory distinguishes moving bodies from fixed natal reference points.
type BodyCategory string

const (
	CategoryMoving    BodyCategory = "MOVING"
	CategoryReference BodyCategory = "REFERENCE"
)

// BodyID identifies a tracked celestial point.
type BodyID string

const (
	BodySun     BodyID = "SUN"
	BodyMoon    BodyID = "MOON"
	BodyMercury BodyID = "MERCURY"
	BodyVenus   BodyID = "VENUS"
	BodyMars    BodyID = "MARS"
	BodyJupiter BodyID = "JUPITER"
	BodySaturn  BodyID = "SATURN"
	BodyUranus  BodyID = "URANUS"
	BodyNeptune BodyID = "NEPTUNE"
	BodyPluto   BodyID = "PLUTO"
)

// MovingBodies is the canonical evaluation order for tracked moving bodies.
// Iterating in this fixed order keeps transition event emission deterministic.
var MovingBodies = []BodyID{
	BodySun, BodyMoon, BodyMercury, BodyVenus, BodyMars,
	BodyJupiter, BodySaturn, BodyUranus, BodyNeptune, BodyPluto,
}

// defaultBodyWeights reflects the relative significance of each moving body
// when scoring a transit. Slow outer planets carry more weight than fast lights.
var defaultBodyWeights = map[BodyID]float64{
	BodySun:     0.7,
	BodyMoon:    0.4,
	BodyMercury: 0.5,
	BodyVenus:   0.5,
	BodyMars:    0.7,
	BodyJupiter: 0.8,
	BodySaturn:  0.9,
	BodyUranus:  0.9,
	BodyNeptune: 0.85,
	BodyPluto:   1.0,
}

// Body describes a tracked point: a moving planet or a natal reference point.
type Body struct {
	ID       BodyID
	Category BodyCategory
	Weight   float64 // significance multiplier in [0,1]; 0 means "use default"
}

// SignificanceWeight returns the body's configured weight, falling back to the
// built-in table and finally to a neutral 0.5 for unknown points.
func (b Body) SignificanceWeight() float64 {
	if b.Weight > 0 {
		return b.Weight
	}
	if w, ok := defaultBodyWeights[b.ID]; ok {
		return w
	}
	return 0.5
}

// Position is a single ephemeris sample. Produced only by a Provider and
// immutable once computed.
type Position struct {
	Body      BodyID
	Timestamp time.Time
	Longitude float64 // degrees, normalized to [0,360)
	Latitude  float64 // degrees
}

// NormalizeLongitude maps any angle in degrees onto [0,360).
func NormalizeLongitude(deg float64) float64 {
	norm := math.Mod(deg, 360)
	if norm < 0 {
		norm += 360
	}
	return norm
}
