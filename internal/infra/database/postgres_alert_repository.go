package database

import (
	"context"
	"database/sql"
	"fmt"

	"transit_notification_engine/internal/domain/alert"

	"github.com/lib/pq" // For pq.Array
)

var ErrAlertRecordNotFound = fmt.Errorf("alert record not found")

type PostgresAlertRepository struct {
	db *sql.DB
}

func NewPostgresAlertRepository(db *sql.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

func (r *PostgresAlertRepository) Create(ctx context.Context, rec *alert.Record) error {
	query := `INSERT INTO alert_records
               (id, user_id, transit_state_id, episode_id, transition_kind, priority,
                score, life_areas, message, delivery_status, suppress_reason)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
               RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.UserID, rec.TransitStateID, rec.EpisodeID, rec.Kind, rec.Priority,
		rec.Score, pq.Array(rec.LifeAreas), rec.Message, rec.DeliveryStatus, rec.SuppressReason,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating alert record: %w", err)
	}
	return nil
}

func (r *PostgresAlertRepository) UpdateDelivery(ctx context.Context, rec *alert.Record) error {
	query := `UPDATE alert_records
               SET delivery_status = $1, delivered_at = $2
               WHERE id = $3
               RETURNING id`
	var id string
	err := r.db.QueryRowContext(ctx, query, rec.DeliveryStatus, rec.DeliveredAt, rec.ID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrAlertRecordNotFound
		}
		return fmt.Errorf("error updating alert record delivery: %w", err)
	}
	return nil
}

func (r *PostgresAlertRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*alert.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, transit_state_id, episode_id, transition_kind, priority,
                      score, life_areas, message, delivery_status, suppress_reason, created_at,
                      COALESCE(delivered_at, 'epoch'::timestamptz)
               FROM alert_records
               WHERE user_id = $1
               ORDER BY created_at DESC
               LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing alert records for user %d: %w", userID, err)
	}
	defer rows.Close()

	var records []*alert.Record
	for rows.Next() {
		rec := alert.Record{}
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.TransitStateID, &rec.EpisodeID, &rec.Kind, &rec.Priority,
			&rec.Score, pq.Array(&rec.LifeAreas), &rec.Message, &rec.DeliveryStatus,
			&rec.SuppressReason, &rec.CreatedAt, &rec.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert record row: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
