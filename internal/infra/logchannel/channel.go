package logchannel

import (
	"context"
	"strings"

	"transit_notification_engine/internal/domain/alert"

	"github.com/sirupsen/logrus"
)

// LogChannel writes alerts to the structured log instead of an external
// transport. Used in development and as the fallback when no real channel is
// configured, so alert content is always observable somewhere.
type LogChannel struct {
	logger *logrus.Logger
}

func NewLogChannel(logger *logrus.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(ctx context.Context, rec *alert.Record) error {
	c.logger.WithFields(logrus.Fields{
		"alert_id":   rec.ID,
		"user_id":    rec.UserID,
		"kind":       rec.Kind,
		"priority":   rec.Priority,
		"score":      rec.Score,
		"life_areas": strings.Join(rec.LifeAreas, ","),
	}).Info(rec.Message)
	return nil
}
