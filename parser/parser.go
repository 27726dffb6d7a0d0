// Package parser normalizes raw catalog items into product records.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-market-harvest/models"
)

// maxQueryTextLength mirrors the submission form limit.
const maxQueryTextLength = 500

// subUnitsPerUnit converts marketplace prices from the smallest currency
// denomination to whole units.
const subUnitsPerUnit = 100

// item mirrors the per-product record of the marketplace envelope.
// Absent fields degrade to zero values rather than failing the item.
type item struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand"`
	Supplier       string  `json:"supplier"`
	SupplierRating float64 `json:"supplierRating"`
	ReviewRating   float64 `json:"reviewRating"`
	Feedbacks      int     `json:"feedbacks"`
	Sizes          []size  `json:"sizes"`
}

type size struct {
	Price struct {
		Product int64 `json:"product"`
	} `json:"price"`
}

// Normalize converts one raw catalog record into a persistable product.
// A malformed record returns an error so the caller can drop just that
// item; it never aborts the surrounding batch.
func Normalize(raw json.RawMessage) (*models.ProductResult, error) {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("decode catalog item: %w", err)
	}

	return &models.ProductResult{
		ExternalID:     it.ID,
		Name:           it.Name,
		Brand:          it.Brand,
		Supplier:       it.Supplier,
		SupplierRating: it.SupplierRating,
		ReviewRating:   it.ReviewRating,
		Feedbacks:      it.Feedbacks,
		Price:          extractPrice(it.Sizes),
	}, nil
}

// extractPrice reads the product price from the first size entry and
// converts it to whole currency units. No sizes means no price.
func extractPrice(sizes []size) int64 {
	if len(sizes) == 0 {
		return 0
	}
	price := sizes[0].Price.Product / subUnitsPerUnit
	if price < 0 {
		return 0
	}
	return price
}

// ValidateQueryText checks a submitted search text before any record is created.
func ValidateQueryText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	if len(text) > maxQueryTextLength {
		return fmt.Errorf("query text cannot exceed %d characters", maxQueryTextLength)
	}
	return nil
}
