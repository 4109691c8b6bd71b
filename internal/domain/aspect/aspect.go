package aspect

// Aspect names a target angular separation between two bodies.
type Aspect string

const (
	Conjunction    Aspect = "CONJUNCTION"
	Sextile        Aspect = "SEXTILE"
	Square         Aspect = "SQUARE"
	Trine          Aspect = "TRINE"
	Opposition     Aspect = "OPPOSITION"
	Semisextile    Aspect = "SEMISEXTILE"
	Semisquare     Aspect = "SEMISQUARE"
	Sesquiquadrate Aspect = "SESQUIQUADRATE"
	Quincunx       Aspect = "QUINCUNX"
)

// Definition is the immutable per-aspect configuration loaded at startup:
// canonical angle, default orb tolerance and scoring weight.
type Definition struct {
	Aspect Aspect
	Angle  float64 // canonical separation in degrees
	Orb    float64 // default tolerance in degrees
	Weight float64 // aspect significance in [0,1]; majors outrank minors
}

// All lists every aspect in canonical evaluation order. The order is fixed so
// detection output, and therefore transition event emission, is deterministic.
var All = []Definition{
	{Aspect: Conjunction, Angle: 0, Orb: 8, Weight: 1.0},
	{Aspect: Sextile, Angle: 60, Orb: 4, Weight: 0.6},
	{Aspect: Square, Angle: 90, Orb: 7, Weight: 0.9},
	{Aspect: Trine, Angle: 120, Orb: 7, Weight: 0.7},
	{Aspect: Opposition, Angle: 180, Orb: 8, Weight: 1.0},
	{Aspect: Semisextile, Angle: 30, Orb: 2, Weight: 0.3},
	{Aspect: Semisquare, Angle: 45, Orb: 2, Weight: 0.4},
	{Aspect: Sesquiquadrate, Angle: 135, Orb: 2, Weight: 0.4},
	{Aspect: Quincunx, Angle: 150, Orb: 3, Weight: 0.5},
}

var byName = func() map[Aspect]Definition {
	m := make(map[Aspect]Definition, len(All))
	for _, def := range All {
		m[def.Aspect] = def
	}
	return m
}()

// Lookup returns the definition for the named aspect.
func Lookup(a Aspect) (Definition, bool) {
	def, ok := byName[a]
	return def, ok
}

// OrbFor resolves the effective orb for an aspect, honoring per-user overrides.
func OrbFor(a Aspect, overrides map[Aspect]float64) float64 {
	if overrides != nil {
		if orb, ok := overrides[a]; ok && orb > 0 {
			return orb
		}
	}
	if def, ok := byName[a]; ok {
		return def.Orb
	}
	return 0
}
