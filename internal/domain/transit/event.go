package transit

import (
	"time"

	"github.com/google/uuid"
)

// TransitionKind names a lifecycle transition worth alerting on.
type TransitionKind string

const (
	TransitionEnteredApproaching TransitionKind = "ENTERED_APPROACHING"
	TransitionReachedExact       TransitionKind = "REACHED_EXACT"
	TransitionEnteredSeparating  TransitionKind = "ENTERED_SEPARATING"
	TransitionReturnedInactive   TransitionKind = "RETURNED_INACTIVE"
)

// Event is emitted by the tracker exactly once per observed phase change and
// handed to the alert engine. Replaying an identical tick emits nothing.
type Event struct {
	Key       Key
	StateID   int64
	EpisodeID uuid.UUID
	Kind      TransitionKind
	Timestamp time.Time
	Score     int
	LifeAreas []string
}
