package chart

import (
	"context"
	"fmt"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/ephemeris"
)

// ErrChartNotFound is returned when a user has no stored natal chart.
var ErrChartNotFound = fmt.Errorf("natal chart not found")

// ReferencePoint is one fixed natal point a user's transits are measured
// against: a natal planet position or a house cusp.
type ReferencePoint struct {
	Body      ephemeris.Body
	Longitude float64 // degrees, normalized to [0,360)
}

// Settings is the per-user monitoring configuration consumed by the engine.
type Settings struct {
	UserID              int64
	Enabled             bool
	PollInterval        time.Duration
	OrbOverrides        map[aspect.Aspect]float64
	AlertCeilingPerHour int
	TelegramChatID      int64 // 0 when the user has no telegram channel bound
}

// Store is the read-only natal chart and settings source. Chart persistence
// and user management live outside this engine.
type Store interface {
	ReferencePoints(ctx context.Context, userID int64) ([]ReferencePoint, error)
	Settings(ctx context.Context, userID int64) (*Settings, error)
	// MonitoredUserIDs lists users with monitoring enabled, in ascending id
	// order so sweep output is reproducible.
	MonitoredUserIDs(ctx context.Context) ([]int64, error)
}
