package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/kubilitics/kubilitics-copilot/internal/models"
)

type migration struct {
	version int
	sql     string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS metrics (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp         DATETIME DEFAULT CURRENT_TIMESTAMP,
    duration_ms       INTEGER,
    prompt_tokens     INTEGER,
    completion_tokens INTEGER,
    total_tokens      INTEGER,
    confidence        REAL
);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics(timestamp DESC);
`,
	},
}

var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS metrics (
    id                BIGSERIAL PRIMARY KEY,
    timestamp         TIMESTAMPTZ NOT NULL DEFAULT now(),
    duration_ms       BIGINT,
    prompt_tokens     INTEGER,
    completion_tokens INTEGER,
    total_tokens      INTEGER,
    confidence        DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics(timestamp DESC);
`,
	},
}

// sqlStore implements Store for both dialects.
type sqlStore struct {
	db         *sqlx.DB
	migrations []migration
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: SQLite serialises writers, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqlStore{db: db, migrations: sqliteMigrations}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewPostgresStore connects to PostgreSQL and runs all pending migrations.
func NewPostgresStore(url string) (Store, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &sqlStore{db: db, migrations: postgresMigrations}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqlStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range s.migrations {
		var count int
		if err := s.db.Get(&count, s.db.Rebind(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`), m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(s.db.Rebind(`INSERT INTO schema_versions(version) VALUES(?)`), m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Metrics ──────────────────────────────────────────────────────────────────

func (s *sqlStore) AppendMetrics(ctx context.Context, rec *models.MetricsRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	query := s.db.Rebind(`
INSERT INTO metrics (timestamp, duration_ms, prompt_tokens, completion_tokens, total_tokens, confidence)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`)

	err := s.db.QueryRowxContext(ctx, query,
		rec.Timestamp.UTC(),
		rec.DurationMS,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.Confidence,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("append metrics: %w", err)
	}
	return nil
}

// metricsRow scans timestamps as text so both drivers share one decoder.
type metricsRow struct {
	ID               int64   `db:"id"`
	Timestamp        string  `db:"timestamp"`
	DurationMS       int64   `db:"duration_ms"`
	PromptTokens     int     `db:"prompt_tokens"`
	CompletionTokens int     `db:"completion_tokens"`
	TotalTokens      int     `db:"total_tokens"`
	Confidence       float64 `db:"confidence"`
}

func (s *sqlStore) ListMetrics(ctx context.Context, limit int) ([]*models.MetricsRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	var rows []metricsRow
	query := s.db.Rebind(`
SELECT id, timestamp,
       COALESCE(duration_ms, 0) AS duration_ms,
       COALESCE(prompt_tokens, 0) AS prompt_tokens,
       COALESCE(completion_tokens, 0) AS completion_tokens,
       COALESCE(total_tokens, 0) AS total_tokens,
       COALESCE(confidence, 0) AS confidence
FROM metrics
ORDER BY id DESC
LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	out := make([]*models.MetricsRecord, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTime(r.Timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.MetricsRecord{
			ID:               r.ID,
			Timestamp:        ts,
			DurationMS:       r.DurationMS,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
			TotalTokens:      r.TotalTokens,
			Confidence:       r.Confidence,
		})
	}
	return out, nil
}

func (s *sqlStore) SummarizeMetrics(ctx context.Context) (*models.MetricsSummary, error) {
	var sum models.MetricsSummary
	err := s.db.GetContext(ctx, &sum, `
SELECT COUNT(*) AS count,
       COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
       COALESCE(SUM(prompt_tokens), 0) AS total_prompt_tokens,
       COALESCE(SUM(completion_tokens), 0) AS total_completion_tokens,
       COALESCE(SUM(total_tokens), 0) AS total_tokens,
       COALESCE(AVG(confidence), 0) AS avg_confidence
FROM metrics`)
	if err != nil {
		return nil, fmt.Errorf("summarize metrics: %w", err)
	}
	return &sum, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// parseTime handles the datetime formats both drivers produce.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
