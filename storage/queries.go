package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-market-harvest/models"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// CreateQuery inserts a new search query in pending state. A duplicate
// query text returns ErrDuplicateQuery.
func (s *Store) CreateQuery(ctx context.Context, queryText string) (*models.SearchQuery, error) {
	query := &models.SearchQuery{QueryText: queryText}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO search_queries (query_text) VALUES ($1)
		 RETURNING id, created_at, is_completed, total_results`,
		queryText,
	).Scan(&query.ID, &query.CreatedAt, &query.IsCompleted, &query.TotalResults)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicateQuery
		}
		return nil, fmt.Errorf("create search query: %w", err)
	}

	return query, nil
}

// QueryByID loads one search query, or ErrQueryNotFound.
func (s *Store) QueryByID(ctx context.Context, id int64) (*models.SearchQuery, error) {
	query := &models.SearchQuery{}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, query_text, created_at, is_completed, total_results
		 FROM search_queries WHERE id = $1`,
		id,
	).Scan(&query.ID, &query.QueryText, &query.CreatedAt, &query.IsCompleted, &query.TotalResults)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueryNotFound
		}
		return nil, fmt.Errorf("get search query: %w", err)
	}

	return query, nil
}

// QueryByText loads a search query by its unique text, or ErrQueryNotFound.
func (s *Store) QueryByText(ctx context.Context, queryText string) (*models.SearchQuery, error) {
	query := &models.SearchQuery{}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, query_text, created_at, is_completed, total_results
		 FROM search_queries WHERE query_text = $1`,
		queryText,
	).Scan(&query.ID, &query.QueryText, &query.CreatedAt, &query.IsCompleted, &query.TotalResults)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueryNotFound
		}
		return nil, fmt.Errorf("get search query by text: %w", err)
	}

	return query, nil
}

// ListQueries returns one display page of the query history, newest first,
// together with the total row count.
func (s *Store) ListQueries(ctx context.Context, limit, offset int) ([]*models.SearchQuery, int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM search_queries`).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count search queries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_text, created_at, is_completed, total_results
		 FROM search_queries
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list search queries: %w", err)
	}
	defer rows.Close()

	queries := make([]*models.SearchQuery, 0, limit)
	for rows.Next() {
		query := &models.SearchQuery{}
		if err := rows.Scan(&query.ID, &query.QueryText, &query.CreatedAt, &query.IsCompleted, &query.TotalResults); err != nil {
			return nil, 0, fmt.Errorf("scan search query: %w", err)
		}
		queries = append(queries, query)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search queries: %w", err)
	}

	return queries, count, nil
}

// DeleteQuery removes a search query; its product results cascade away
// with it. Deleting an unknown id returns ErrQueryNotFound.
func (s *Store) DeleteQuery(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM search_queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete search query: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete search query: %w", err)
	}
	if affected == 0 {
		return ErrQueryNotFound
	}
	return nil
}

// CompleteQuery marks a search query completed with the given result
// count. The row is re-read under a row lock inside the transaction so a
// concurrent external mutation is not clobbered blindly.
func (s *Store) CompleteQuery(ctx context.Context, id int64, totalResults int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete query: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM search_queries WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQueryNotFound
		}
		return fmt.Errorf("lock search query: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE search_queries SET is_completed = true, total_results = $2 WHERE id = $1`,
		id, totalResults,
	); err != nil {
		return fmt.Errorf("complete search query: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete query: %w", err)
	}
	return nil
}
