package storage

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aluiziolira/go-market-harvest/models"
)

func TestInsertResultsStatement(t *testing.T) {
	statement := insertResultsStatement(2)

	if !strings.HasPrefix(statement, "INSERT INTO product_results (search_query_id,") {
		t.Fatalf("unexpected statement prefix: %s", statement)
	}
	if !strings.HasSuffix(statement, "ON CONFLICT DO NOTHING") {
		t.Fatalf("statement must be conflict tolerant: %s", statement)
	}

	wantPlaceholders := 2 * len(resultColumns)
	if got := strings.Count(statement, "$"); got != wantPlaceholders {
		t.Fatalf("placeholders = %d, want %d", got, wantPlaceholders)
	}
	if !strings.Contains(statement, fmt.Sprintf("$%d)", wantPlaceholders)) {
		t.Fatalf("last placeholder should be $%d: %s", wantPlaceholders, statement)
	}
}

func TestChunkProducts(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		size      int
		wantSizes []int
	}{
		{name: "empty", total: 0, size: 100, wantSizes: []int{}},
		{name: "under one chunk", total: 42, size: 100, wantSizes: []int{42}},
		{name: "exact chunks", total: 200, size: 100, wantSizes: []int{100, 100}},
		{name: "remainder chunk", total: 250, size: 100, wantSizes: []int{100, 100, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products := make([]*models.ProductResult, tt.total)
			for i := range products {
				products[i] = &models.ProductResult{ExternalID: int64(i)}
			}

			chunks := chunkProducts(products, tt.size)
			if len(chunks) != len(tt.wantSizes) {
				t.Fatalf("chunks = %d, want %d", len(chunks), len(tt.wantSizes))
			}
			for i, chunk := range chunks {
				if len(chunk) != tt.wantSizes[i] {
					t.Fatalf("chunk %d size = %d, want %d", i, len(chunk), tt.wantSizes[i])
				}
			}
		})
	}
}

func TestOrderByClause(t *testing.T) {
	tests := []struct {
		name string
		sort []SortField
		want string
	}{
		{
			name: "no sort falls back to insertion order",
			sort: nil,
			want: "id ASC",
		},
		{
			name: "single ascending field",
			sort: []SortField{{Column: "price"}},
			want: "price ASC, id ASC",
		},
		{
			name: "multiple fields keep request order",
			sort: []SortField{{Column: "brand", Desc: true}, {Column: "price"}},
			want: "brand DESC, price ASC, id ASC",
		},
		{
			name: "unknown column is dropped",
			sort: []SortField{{Column: "id; DROP TABLE product_results"}, {Column: "name"}},
			want: "name ASC, id ASC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := orderByClause(tt.sort); got != tt.want {
				t.Fatalf("orderByClause = %q, want %q", got, tt.want)
			}
		})
	}
}
