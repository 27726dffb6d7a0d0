// Package models defines data structures for the harvester.
package models

import "time"

// SearchQuery represents one harvesting request submitted by a client.
// It is created in a pending state (IsCompleted false, TotalResults 0)
// and mutated exactly once more by the harvest that owns it.
type SearchQuery struct {
	ID           int64     `json:"id"`
	QueryText    string    `json:"query_text"`
	CreatedAt    time.Time `json:"created_at"`
	IsCompleted  bool      `json:"is_completed"`
	TotalResults int       `json:"total_results"`
}

// ProductResult is one harvested listing owned by a SearchQuery.
// Rows are inserted in bulk during a harvest and never updated.
type ProductResult struct {
	ID             int64     `json:"id"`
	SearchQueryID  int64     `json:"search_query_id"`
	ExternalID     int64     `json:"external_id"`
	Name           string    `json:"name"`
	Brand          string    `json:"brand"`
	Supplier       string    `json:"supplier"`
	SupplierRating float64   `json:"supplier_rating"`
	ReviewRating   float64   `json:"review_rating"`
	Feedbacks      int       `json:"feedbacks"`
	Price          int64     `json:"price"`
	CreatedAt      time.Time `json:"created_at"`
}

// HarvestReport holds the overall result of one harvest run.
type HarvestReport struct {
	QueryID       int64
	StartTime     time.Time
	EndTime       time.Time
	PagesPlanned  int
	PagesFetched  int
	PagesFailed   int
	ItemsDropped  int
	InsertedCount int
	Rejected      bool
	Aborted       bool
	ErrorMessage  string
}
