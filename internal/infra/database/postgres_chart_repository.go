package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/chart"
	"transit_notification_engine/internal/domain/ephemeris"
)

// PostgresChartRepository is the read-only natal chart and settings source.
// Chart writes happen in the surrounding application, not in this engine.
type PostgresChartRepository struct {
	db *sql.DB
}

func NewPostgresChartRepository(db *sql.DB) *PostgresChartRepository {
	return &PostgresChartRepository{db: db}
}

func (r *PostgresChartRepository) ReferencePoints(ctx context.Context, userID int64) ([]chart.ReferencePoint, error) {
	query := `SELECT body_id, longitude, COALESCE(weight, 0)
               FROM natal_points
               WHERE user_id = $1
               ORDER BY body_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing natal points for user %d: %w", userID, err)
	}
	defer rows.Close()

	var points []chart.ReferencePoint
	for rows.Next() {
		var p chart.ReferencePoint
		if err := rows.Scan(&p.Body.ID, &p.Longitude, &p.Body.Weight); err != nil {
			return nil, fmt.Errorf("error scanning natal point row: %w", err)
		}
		p.Body.Category = ephemeris.CategoryReference
		p.Longitude = ephemeris.NormalizeLongitude(p.Longitude)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, chart.ErrChartNotFound
	}
	return points, nil
}

func (r *PostgresChartRepository) Settings(ctx context.Context, userID int64) (*chart.Settings, error) {
	query := `SELECT user_id, enabled, poll_interval_seconds, orb_overrides,
                      alert_ceiling_per_hour, COALESCE(telegram_chat_id, 0)
               FROM user_settings WHERE user_id = $1`
	s := chart.Settings{}
	var pollSeconds int
	var overridesRaw []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.Enabled, &pollSeconds, &overridesRaw,
		&s.AlertCeilingPerHour, &s.TelegramChatID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, chart.ErrChartNotFound
		}
		return nil, fmt.Errorf("error getting settings for user %d: %w", userID, err)
	}
	s.PollInterval = time.Duration(pollSeconds) * time.Second

	if len(overridesRaw) > 0 {
		overrides := map[aspect.Aspect]float64{}
		if err := json.Unmarshal(overridesRaw, &overrides); err != nil {
			return nil, fmt.Errorf("invalid orb overrides for user %d: %w", userID, err)
		}
		s.OrbOverrides = overrides
	}
	return &s, nil
}

func (r *PostgresChartRepository) MonitoredUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM user_settings WHERE enabled ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing monitored users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning monitored user row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
