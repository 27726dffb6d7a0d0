// Package harvest runs the asynchronous paginated harvesting pipeline:
// one synchronous validation fetch, a bounded fan-out over the remaining
// pages, bulk persistence, and the owning query's completion transition.
package harvest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-market-harvest/catalog"
	"github.com/aluiziolira/go-market-harvest/models"
	"github.com/aluiziolira/go-market-harvest/parser"
)

const (
	// MaxPages caps how many catalog pages a single harvest fetches.
	MaxPages = 10

	// resultsPerPage is the fixed page size of the catalog endpoint.
	resultsPerPage = 100
)

// Metric label values for page and harvest outcomes.
const (
	pageFetched = "fetched"
	pageFailed  = "failed"

	outcomeCompleted = "completed"
	outcomeRejected  = "rejected"
	outcomeAborted   = "aborted"
)

// Store is the persistence surface one harvest needs.
type Store interface {
	QueryByID(ctx context.Context, id int64) (*models.SearchQuery, error)
	InsertResults(ctx context.Context, queryID int64, products []*models.ProductResult) (int, error)
	CompleteQuery(ctx context.Context, id int64, totalResults int) error
}

// Catalog fetches one page of marketplace search results.
type Catalog interface {
	Fetch(ctx context.Context, queryText string, page int) catalog.Result
}

// Job is one harvest execution for a single search query.
type Job struct {
	queryID   int64
	queryText string

	store   Store
	catalog Catalog
	metrics *Metrics

	pagesFetched int64
	pagesFailed  int64
	itemsDropped int64
}

// NewJob builds a harvest job for the given search query.
func NewJob(queryID int64, queryText string, store Store, cat Catalog, metrics *Metrics) *Job {
	return &Job{
		queryID:   queryID,
		queryText: queryText,
		store:     store,
		catalog:   cat,
		metrics:   metrics,
	}
}

// Run drives the harvest to one of its terminal states. Faults below the
// job level are absorbed into the report; Run itself never fails.
func (j *Job) Run(ctx context.Context) *models.HarvestReport {
	report := &models.HarvestReport{
		QueryID:   j.queryID,
		StartTime: time.Now(),
	}

	if _, err := j.store.QueryByID(ctx, j.queryID); err != nil {
		// The request that created the query is gone; there is nothing to mutate.
		slog.Warn("harvest aborted: search query not loadable",
			slog.Int64("query_id", j.queryID),
			slog.Any("error", err),
		)
		j.metrics.IncHarvest(outcomeAborted)
		report.Aborted = true
		report.ErrorMessage = err.Error()
		return j.finish(report)
	}

	first := j.fetchPage(ctx, 1)
	if !first.Valid {
		if err := j.store.CompleteQuery(ctx, j.queryID, 0); err != nil {
			slog.Error("mark rejected query completed",
				slog.Int64("query_id", j.queryID),
				slog.Any("error", err),
			)
		}
		slog.Info("query rejected by marketplace",
			slog.Int64("query_id", j.queryID),
			slog.String("query_text", j.queryText),
			slog.String("reason", first.ErrorMessage),
		)
		j.metrics.IncHarvest(outcomeRejected)
		report.Rejected = true
		report.ErrorMessage = first.ErrorMessage
		report.PagesPlanned = 1
		return j.finish(report)
	}

	// Page 1 persists before any fan-out: its reported total fixes the
	// page budget and its insert count seeds the reduction.
	created := int64(j.persistPage(ctx, 1, first.Items))

	budget := pageBudget(first.Total)
	report.PagesPlanned = budget

	if budget > 1 {
		j.fanOut(ctx, budget, &created)
	}

	if err := j.store.CompleteQuery(ctx, j.queryID, int(created)); err != nil {
		slog.Error("mark query completed",
			slog.Int64("query_id", j.queryID),
			slog.Any("error", err),
		)
	}
	j.metrics.IncHarvest(outcomeCompleted)

	report.InsertedCount = int(created)
	return j.finish(report)
}

// fanOut processes pages 2..budget on a bounded worker pool and adds each
// page's insert count to created. It returns only after every dispatched
// page has been handled.
func (j *Job) fanOut(ctx context.Context, budget int, created *int64) {
	workers := budget - 1
	if workers > MaxPages {
		workers = MaxPages
	}

	pages := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pages {
				atomic.AddInt64(created, int64(j.harvestPage(ctx, page)))
			}
		}()
	}

	for page := 2; page <= budget; page++ {
		pages <- page
	}
	close(pages)
	wg.Wait()
}

// harvestPage fetches, normalizes, and persists one page. Any fault,
// panics included, is absorbed as a zero contribution so sibling pages
// keep going.
func (j *Job) harvestPage(ctx context.Context, page int) (inserted int) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&j.pagesFailed, 1)
			j.metrics.IncPage(pageFailed)
			slog.Error("harvest page panic",
				slog.Int64("query_id", j.queryID),
				slog.Int("page", page),
				slog.Any("panic", r),
			)
			inserted = 0
		}
	}()

	result := j.fetchPage(ctx, page)
	if !result.Valid {
		atomic.AddInt64(&j.pagesFailed, 1)
		j.metrics.IncPage(pageFailed)
		slog.Error("page fetch failed",
			slog.Int64("query_id", j.queryID),
			slog.Int("page", page),
			slog.String("reason", result.ErrorMessage),
		)
		return 0
	}

	return j.persistPage(ctx, page, result.Items)
}

// persistPage normalizes one page's raw items and bulk-inserts them.
// Malformed items are dropped one by one; a storage fault fails only this
// page.
func (j *Job) persistPage(ctx context.Context, page int, items []json.RawMessage) int {
	products := make([]*models.ProductResult, 0, len(items))
	dropped := 0
	for _, raw := range items {
		product, err := parser.Normalize(raw)
		if err != nil {
			dropped++
			slog.Debug("dropping malformed catalog item",
				slog.Int64("query_id", j.queryID),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			continue
		}
		products = append(products, product)
	}
	if dropped > 0 {
		atomic.AddInt64(&j.itemsDropped, int64(dropped))
		j.metrics.AddDropped(dropped)
	}

	inserted, err := j.store.InsertResults(ctx, j.queryID, products)
	if err != nil {
		atomic.AddInt64(&j.pagesFailed, 1)
		j.metrics.IncPage(pageFailed)
		slog.Error("persist page batch",
			slog.Int64("query_id", j.queryID),
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return 0
	}

	atomic.AddInt64(&j.pagesFetched, 1)
	j.metrics.IncPage(pageFetched)
	j.metrics.AddInserted(inserted)
	return inserted
}

func (j *Job) fetchPage(ctx context.Context, page int) catalog.Result {
	start := time.Now()
	result := j.catalog.Fetch(ctx, j.queryText, page)
	j.metrics.ObserveFetch(time.Since(start))
	return result
}

func (j *Job) finish(report *models.HarvestReport) *models.HarvestReport {
	report.EndTime = time.Now()
	report.PagesFetched = int(atomic.LoadInt64(&j.pagesFetched))
	report.PagesFailed = int(atomic.LoadInt64(&j.pagesFailed))
	report.ItemsDropped = int(atomic.LoadInt64(&j.itemsDropped))
	return report
}

// pageBudget derives how many pages to fetch from the reported total.
func pageBudget(totalResults int) int {
	pages := (totalResults + resultsPerPage - 1) / resultsPerPage
	if pages > MaxPages {
		return MaxPages
	}
	if pages < 1 {
		return 1
	}
	return pages
}
