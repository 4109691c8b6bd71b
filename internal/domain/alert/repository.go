package alert

import "context"

// Repository persists alert records for auditing and re-fire prevention.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	UpdateDelivery(ctx context.Context, rec *Record) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Record, error)
}

// Channel delivers an accepted alert over one transport (push, email, ...).
// Implementations own their retry policy; the engine records a failure on the
// Record and moves on.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, rec *Record) error
}
