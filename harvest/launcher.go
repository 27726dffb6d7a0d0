package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-market-harvest/models"
)

// ErrLauncherClosed is returned when a harvest is launched during shutdown.
var ErrLauncherClosed = errors.New("harvest: launcher closed")

// Launcher starts harvest jobs detached from the request that triggered
// them. It tracks in-flight harvests so shutdown can wait for them.
type Launcher struct {
	store   Store
	catalog Catalog
	metrics *Metrics

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewLauncher builds a launcher sharing one store, catalog client, and
// metrics registry across all harvests.
func NewLauncher(store Store, cat Catalog, metrics *Metrics) *Launcher {
	return &Launcher{
		store:   store,
		catalog: cat,
		metrics: metrics,
	}
}

// Launch starts a harvest for the given query and returns immediately.
// The caller observes progress only by polling the query's completion
// state.
func (l *Launcher) Launch(queryID int64, queryText string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLauncherClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()

		// Background context: the harvest outlives the request scope that
		// triggered it.
		job := NewJob(queryID, queryText, l.store, l.catalog, l.metrics)
		report := job.Run(context.Background())

		slog.Info("harvest finished",
			slog.Int64("query_id", report.QueryID),
			slog.String("outcome", reportOutcome(report)),
			slog.Int("pages_planned", report.PagesPlanned),
			slog.Int("pages_fetched", report.PagesFetched),
			slog.Int("pages_failed", report.PagesFailed),
			slog.Int("items_dropped", report.ItemsDropped),
			slog.Int("inserted", report.InsertedCount),
			slog.Duration("elapsed", report.EndTime.Sub(report.StartTime)),
		)
	}()

	return nil
}

// Close stops accepting new harvests and waits for in-flight ones until
// ctx expires.
func (l *Launcher) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight harvests: %w", ctx.Err())
	}
}

func reportOutcome(report *models.HarvestReport) string {
	switch {
	case report.Aborted:
		return outcomeAborted
	case report.Rejected:
		return outcomeRejected
	default:
		return outcomeCompleted
	}
}
