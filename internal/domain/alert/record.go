package alert

import (
	"time"

	"transit_notification_engine/internal/domain/transit"

	"github.com/google/uuid"
)

// DeliveryStatus records the outcome of handing a record to channel adapters.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
	DeliveryFailed     DeliveryStatus = "FAILED"
	DeliverySuppressed DeliveryStatus = "SUPPRESSED"
)

// Priority buckets alerts for downstream digesting. Exact transitions outrank
// approaching/separating ones regardless of score.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Record is the durable trace of one accepted (or suppressed) transition
// alert. At most one record exists per (episode, transition kind); the state
// machine's emit-once guarantee enforces this, the store merely witnesses it.
type Record struct {
	ID             uuid.UUID
	UserID         int64
	TransitStateID int64
	EpisodeID      uuid.UUID
	Kind           transit.TransitionKind
	Priority       Priority
	Score          int
	LifeAreas      []string
	Message        string
	DeliveryStatus DeliveryStatus
	SuppressReason string
	CreatedAt      time.Time
	DeliveredAt    time.Time
}
