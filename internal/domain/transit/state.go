package transit

import (
	"database/sql"
	"fmt"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/ephemeris"

	"github.com/google/uuid"
)

// Phase is the lifecycle phase of one tracked (moving, reference, aspect)
// relationship.
type Phase string

const (
	PhaseInactive    Phase = "INACTIVE"
	PhaseApproaching Phase = "APPROACHING"
	PhaseExact       Phase = "EXACT"
	PhaseSeparating  Phase = "SEPARATING"
)

// Key identifies one tracked relationship for one user.
type Key struct {
	UserID    int64
	Moving    ephemeris.BodyID
	Reference ephemeris.BodyID
	Aspect    aspect.Aspect
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s-%s/%s", k.UserID, k.Moving, k.Reference, k.Aspect)
}

// State is the durable tracking record per Key. It is owned exclusively by the
// tick processing that key; the alert engine only reads the transition events
// the tracker emits.
type State struct {
	ID              int64
	UserID          int64
	Moving          ephemeris.BodyID
	Reference       ephemeris.BodyID
	Aspect          aspect.Aspect
	Phase           Phase
	EpisodeID       uuid.UUID    // current orb-window episode; uuid.Nil while inactive
	FirstEnteredAt  sql.NullTime // when the current episode entered orb
	ExactAt         sql.NullTime // when exactness was last reached; null until reached
	LastEvaluatedAt time.Time
	LastScore       int
	LastSeparation  sql.NullFloat64 // separation at the previous tick, in degrees
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key returns the tracking key of this state.
func (s *State) Key() Key {
	return Key{UserID: s.UserID, Moving: s.Moving, Reference: s.Reference, Aspect: s.Aspect}
}

// Active reports whether the relationship is currently within orb.
func (s *State) Active() bool {
	return s.Phase != PhaseInactive
}
