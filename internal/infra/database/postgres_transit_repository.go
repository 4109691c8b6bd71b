package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"transit_notification_engine/internal/domain/transit"

	"github.com/google/uuid"
)

// Custom errors specific to the transit repository
var ErrTransitStateNotFound = fmt.Errorf("transit state not found")

type PostgresTransitRepository struct {
	db *sql.DB
}

func NewPostgresTransitRepository(db *sql.DB) *PostgresTransitRepository {
	return &PostgresTransitRepository{db: db}
}

const transitStateColumns = `id, user_id, moving_body, reference_body, aspect, phase,
	episode_id, first_entered_at, exact_at, last_evaluated_at, last_score, last_separation,
	created_at, updated_at`

func (r *PostgresTransitRepository) Get(ctx context.Context, key transit.Key) (*transit.State, error) {
	query := `SELECT ` + transitStateColumns + ` FROM transit_states
               WHERE user_id = $1 AND moving_body = $2 AND reference_body = $3 AND aspect = $4`
	row := r.db.QueryRowContext(ctx, query, key.UserID, key.Moving, key.Reference, key.Aspect)
	st, err := scanTransitState(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransitStateNotFound
		}
		return nil, fmt.Errorf("error getting transit state %s: %w", key, err)
	}
	return st, nil
}

func (r *PostgresTransitRepository) Create(ctx context.Context, st *transit.State) error {
	query := `INSERT INTO transit_states
               (user_id, moving_body, reference_body, aspect, phase, episode_id,
                first_entered_at, exact_at, last_evaluated_at, last_score, last_separation)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		st.UserID, st.Moving, st.Reference, st.Aspect, st.Phase, episodeParam(st.EpisodeID),
		st.FirstEnteredAt, st.ExactAt, st.LastEvaluatedAt, st.LastScore, st.LastSeparation,
	).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating transit state %s: %w", st.Key(), err)
	}
	return nil
}

func (r *PostgresTransitRepository) Update(ctx context.Context, st *transit.State) error {
	query := `UPDATE transit_states
               SET phase = $1, episode_id = $2, first_entered_at = $3, exact_at = $4,
                   last_evaluated_at = $5, last_score = $6, last_separation = $7, updated_at = NOW()
               WHERE id = $8
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		st.Phase, episodeParam(st.EpisodeID), st.FirstEnteredAt, st.ExactAt,
		st.LastEvaluatedAt, st.LastScore, st.LastSeparation, st.ID,
	).Scan(&st.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrTransitStateNotFound
		}
		return fmt.Errorf("error updating transit state %d: %w", st.ID, err)
	}
	return nil
}

func (r *PostgresTransitRepository) ListByUser(ctx context.Context, userID int64) ([]*transit.State, error) {
	query := `SELECT ` + transitStateColumns + ` FROM transit_states
               WHERE user_id = $1
               ORDER BY moving_body, reference_body, aspect`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing transit states for user %d: %w", userID, err)
	}
	defer rows.Close()

	var states []*transit.State
	for rows.Next() {
		st, err := scanTransitState(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transit state row: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func (r *PostgresTransitRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*transit.State, error) {
	query := `SELECT ` + transitStateColumns + ` FROM transit_states
               WHERE user_id = $1 AND phase <> $2
               ORDER BY moving_body, reference_body, aspect`
	rows, err := r.db.QueryContext(ctx, query, userID, transit.PhaseInactive)
	if err != nil {
		return nil, fmt.Errorf("error listing active transit states for user %d: %w", userID, err)
	}
	defer rows.Close()

	var states []*transit.State
	for rows.Next() {
		st, err := scanTransitState(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transit state row: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// ArchiveEpisode copies the completed episode into transit_episodes and clears
// the state's episode fields inside one transaction.
func (r *PostgresTransitRepository) ArchiveEpisode(ctx context.Context, st *transit.State, closedAt time.Time) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for episode archive: %w", err)
	}
	defer txn.Rollback()

	_, err = txn.ExecContext(ctx, `INSERT INTO transit_episodes
               (state_id, user_id, moving_body, reference_body, aspect, episode_id,
                first_entered_at, exact_at, closed_at, peak_score)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		st.ID, st.UserID, st.Moving, st.Reference, st.Aspect, episodeParam(st.EpisodeID),
		st.FirstEnteredAt, st.ExactAt, closedAt, st.LastScore)
	if err != nil {
		return fmt.Errorf("error archiving episode for state %d: %w", st.ID, err)
	}

	_, err = txn.ExecContext(ctx, `UPDATE transit_states
               SET episode_id = NULL, first_entered_at = NULL, exact_at = NULL, updated_at = NOW()
               WHERE id = $1`, st.ID)
	if err != nil {
		return fmt.Errorf("error resetting state %d after episode archive: %w", st.ID, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit episode archive for state %d: %w", st.ID, err)
	}

	st.EpisodeID = uuid.Nil
	st.FirstEnteredAt = sql.NullTime{}
	st.ExactAt = sql.NullTime{}
	return nil
}

func (r *PostgresTransitRepository) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transit_episodes WHERE closed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error purging archived episodes: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransitState(row rowScanner) (*transit.State, error) {
	st := transit.State{}
	var episodeID sql.NullString
	err := row.Scan(
		&st.ID, &st.UserID, &st.Moving, &st.Reference, &st.Aspect, &st.Phase,
		&episodeID, &st.FirstEnteredAt, &st.ExactAt, &st.LastEvaluatedAt,
		&st.LastScore, &st.LastSeparation, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if episodeID.Valid {
		parsed, err := uuid.Parse(episodeID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid episode id %q: %w", episodeID.String, err)
		}
		st.EpisodeID = parsed
	}
	return &st, nil
}

// episodeParam maps uuid.Nil onto SQL NULL.
func episodeParam(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}
