package ephemeris

import (
	"context"
	"fmt"
	"time"
)

// Errors reported by position providers. The engine treats provider failures as
// transient: the affected pairs are skipped for the tick and retried next cadence.
var (
	ErrProviderUnavailable = fmt.Errorf("position provider unavailable")
	ErrInvalidTimestamp    = fmt.Errorf("invalid timestamp for position lookup")
)

// Provider computes positions for a set of bodies at a single instant.
// Implementations wrap an external ephemeris service; the engine never does
// astronomical math itself.
type Provider interface {
	PositionsAt(ctx context.Context, bodies []BodyID, ts time.Time) (map[BodyID]Position, error)
}

// ValidateTimestamp rejects zero or far-future timestamps at the API boundary
// before any provider call is made.
func ValidateTimestamp(ts time.Time) error {
	if ts.IsZero() {
		return ErrInvalidTimestamp
	}
	if ts.After(time.Now().AddDate(100, 0, 0)) {
		return fmt.Errorf("%w: %s is more than 100 years ahead", ErrInvalidTimestamp, ts.Format(time.RFC3339))
	}
	return nil
}
