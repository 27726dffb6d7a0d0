// Package storage persists search queries and harvested product results in Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
	maxOpenConns    = 20

	// insertChunkSize bounds how many rows go into a single INSERT statement.
	insertChunkSize = 100
)

var (
	// ErrDuplicateQuery is returned when a query text already exists.
	ErrDuplicateQuery = errors.New("storage: query text already exists")

	// ErrQueryNotFound is returned when a search query id does not resolve.
	ErrQueryNotFound = errors.New("storage: search query not found")
)

// Store wraps the Postgres connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection, retrying while
// the database comes up.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	var pingErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			return &Store{db: db}, nil
		}

		slog.Warn("postgres not ready",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", connectAttempts),
			slog.Any("error", pingErr),
		)

		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}

	db.Close()
	return nil, fmt.Errorf("ping postgres: %w", pingErr)
}

// NewStore wraps an existing database handle. Used by tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema when it does not exist yet.
//
// product_results has no uniqueness constraint beyond its primary key, so
// an item repeated across pages is stored once per page it appears on.
// The conflict-tolerant insert path still skips rows colliding with
// whatever constraints do exist.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS search_queries (
			id            bigserial PRIMARY KEY,
			query_text    varchar(255) NOT NULL UNIQUE,
			created_at    timestamptz  NOT NULL DEFAULT now(),
			is_completed  boolean      NOT NULL DEFAULT false,
			total_results integer      NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS product_results (
			id              bigserial PRIMARY KEY,
			search_query_id bigint NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
			external_id     bigint           NOT NULL DEFAULT 0,
			name            varchar(255)     NOT NULL DEFAULT '',
			brand           varchar(255)     NOT NULL DEFAULT '',
			supplier        varchar(255)     NOT NULL DEFAULT '',
			supplier_rating double precision NOT NULL DEFAULT 0,
			review_rating   double precision NOT NULL DEFAULT 0,
			feedbacks       integer          NOT NULL DEFAULT 0,
			price           bigint           NOT NULL DEFAULT 0,
			created_at      timestamptz      NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_results_search_query_id
			ON product_results (search_query_id)`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
