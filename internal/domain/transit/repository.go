package transit

import (
	"context"
	"time"
)

// Repository defines persistence for transit states and completed episodes.
type Repository interface {
	// Get fetches the state for a key, or ErrStateNotFound.
	Get(ctx context.Context, key Key) (*State, error)
	// Create inserts a fresh state row (phase INACTIVE) and fills generated fields.
	Create(ctx context.Context, st *State) error
	// Update persists the state after a tick.
	Update(ctx context.Context, st *State) error
	// ListByUser returns every state row for a user, active or not, in
	// deterministic (moving, reference, aspect) order.
	ListByUser(ctx context.Context, userID int64) ([]*State, error)
	// ListActiveByUser returns the user's in-orb states in deterministic
	// (moving, reference, aspect) order.
	ListActiveByUser(ctx context.Context, userID int64) ([]*State, error)
	// ArchiveEpisode copies the just-completed episode into the archive and
	// resets the state's episode fields.
	ArchiveEpisode(ctx context.Context, st *State, closedAt time.Time) error
	// PurgeArchivedBefore deletes archived episodes older than the cutoff,
	// returning the number removed.
	PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
