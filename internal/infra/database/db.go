package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// Connections beyond the worker pool cover the housekeeping job and
	// on-demand checks arriving between sweeps.
	poolHeadroom = 4

	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection opens a pooled PostgreSQL connection and verifies it
// with a ping. Each sweep worker runs its statements sequentially, so the pool
// is sized to the worker count plus a small fixed headroom.
func NewPostgresConnection(dataSourceName string, workerCount int) (*sql.DB, error) {
	if workerCount <= 0 {
		workerCount = 8
	}

	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(workerCount + poolHeadroom)
	db.SetMaxIdleConns(workerCount)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
