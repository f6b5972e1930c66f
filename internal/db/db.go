// Package db persists per-request usage metrics.
//
// Two dialects share one implementation built on sqlx: SQLite through the
// pure-Go modernc driver (default, file or ":memory:") and PostgreSQL
// through lib/pq. Schemas are versioned in a schema_versions table.
package db

import (
	"context"
	"fmt"

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

// MetricsStore is the append-only metrics table.
type MetricsStore interface {
	// AppendMetrics inserts rec and sets its ID.
	AppendMetrics(ctx context.Context, rec *models.MetricsRecord) error

	// ListMetrics returns the most recent records, newest first.
	ListMetrics(ctx context.Context, limit int) ([]*models.MetricsRecord, error)

	// SummarizeMetrics aggregates the whole table.
	SummarizeMetrics(ctx context.Context) (*models.MetricsSummary, error)
}

// Store is the persistence interface of the service.
type Store interface {
	MetricsStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// Options selects and configures a backend.
type Options struct {
	Type        string // sqlite | postgres
	SQLitePath  string
	PostgresURL string
}

// Open returns the store selected by opts.
func Open(opts Options) (Store, error) {
	switch opts.Type {
	case "", "sqlite":
		return NewSQLiteStore(opts.SQLitePath)
	case "postgres":
		return NewPostgresStore(opts.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported database type %q", opts.Type)
	}
}

// DefaultListLimit applies when ListMetrics is given a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps ListMetrics.
const MaxListLimit = 1000
