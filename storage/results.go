package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-market-harvest/models"
)

// resultColumns are the insertable columns of product_results, in
// statement order.
var resultColumns = []string{
	"search_query_id",
	"external_id",
	"name",
	"brand",
	"supplier",
	"supplier_rating",
	"review_rating",
	"feedbacks",
	"price",
}

// SortField describes one ORDER BY term for listing product results.
type SortField struct {
	Column string
	Desc   bool
}

// sortableColumns whitelists columns clients may sort results by.
var sortableColumns = map[string]struct{}{
	"name":            {},
	"brand":           {},
	"supplier":        {},
	"supplier_rating": {},
	"review_rating":   {},
	"feedbacks":       {},
	"price":           {},
}

// InsertResults bulk-inserts one page's products for a search query in a
// single transaction, sub-batched at insertChunkSize rows. Rows colliding
// with an existing constraint are skipped, not errored. Returns the
// number of rows actually written.
func (s *Store) InsertResults(ctx context.Context, queryID int64, products []*models.ProductResult) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert results: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, chunk := range chunkProducts(products, insertChunkSize) {
		args := make([]interface{}, 0, len(chunk)*len(resultColumns))
		for _, product := range chunk {
			args = append(args,
				queryID,
				product.ExternalID,
				product.Name,
				product.Brand,
				product.Supplier,
				product.SupplierRating,
				product.ReviewRating,
				product.Feedbacks,
				product.Price,
			)
		}

		result, err := tx.ExecContext(ctx, insertResultsStatement(len(chunk)), args...)
		if err != nil {
			return 0, fmt.Errorf("insert results chunk: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert results chunk: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert results: %w", err)
	}
	return inserted, nil
}

// ListResults returns one display page of a query's results plus the
// total row count. Sort fields outside the whitelist are ignored.
func (s *Store) ListResults(ctx context.Context, queryID int64, sort []SortField, limit, offset int) ([]*models.ProductResult, int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM product_results WHERE search_query_id = $1`, queryID,
	).Scan(&count)
	if err != nil {
		return nil, 0, fmt.Errorf("count product results: %w", err)
	}

	statement := fmt.Sprintf(
		`SELECT id, search_query_id, external_id, name, brand, supplier,
		        supplier_rating, review_rating, feedbacks, price, created_at
		 FROM product_results
		 WHERE search_query_id = $1
		 ORDER BY %s
		 LIMIT $2 OFFSET $3`,
		orderByClause(sort),
	)

	rows, err := s.db.QueryContext(ctx, statement, queryID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list product results: %w", err)
	}
	defer rows.Close()

	results := make([]*models.ProductResult, 0, limit)
	for rows.Next() {
		product := &models.ProductResult{}
		if err := rows.Scan(
			&product.ID, &product.SearchQueryID, &product.ExternalID,
			&product.Name, &product.Brand, &product.Supplier,
			&product.SupplierRating, &product.ReviewRating,
			&product.Feedbacks, &product.Price, &product.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan product result: %w", err)
		}
		results = append(results, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product results: %w", err)
	}

	return results, count, nil
}

// insertResultsStatement builds a multi-row insert for rows product rows.
func insertResultsStatement(rows int) string {
	var builder strings.Builder
	builder.WriteString("INSERT INTO product_results (")
	builder.WriteString(strings.Join(resultColumns, ", "))
	builder.WriteString(") VALUES ")

	placeholder := 1
	for row := 0; row < rows; row++ {
		if row > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("(")
		for col := range resultColumns {
			if col > 0 {
				builder.WriteString(", ")
			}
			fmt.Fprintf(&builder, "$%d", placeholder)
			placeholder++
		}
		builder.WriteString(")")
	}

	builder.WriteString(" ON CONFLICT DO NOTHING")
	return builder.String()
}

// chunkProducts splits products into slices of at most size elements.
func chunkProducts(products []*models.ProductResult, size int) [][]*models.ProductResult {
	if size <= 0 {
		size = len(products)
	}

	chunks := make([][]*models.ProductResult, 0, (len(products)+size-1)/size)
	for start := 0; start < len(products); start += size {
		end := start + size
		if end > len(products) {
			end = len(products)
		}
		chunks = append(chunks, products[start:end])
	}
	return chunks
}

// orderByClause renders a safe ORDER BY from whitelisted sort fields,
// falling back to insertion order.
func orderByClause(sort []SortField) string {
	terms := make([]string, 0, len(sort)+1)
	for _, field := range sort {
		if _, ok := sortableColumns[field.Column]; !ok {
			continue
		}
		direction := "ASC"
		if field.Desc {
			direction = "DESC"
		}
		terms = append(terms, field.Column+" "+direction)
	}

	terms = append(terms, "id ASC")
	return strings.Join(terms, ", ")
}
