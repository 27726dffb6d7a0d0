package harvest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvesting pipeline.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         *prometheus.CounterVec
	PageFetchDuration  prometheus.Histogram
	ItemsInsertedTotal prometheus.Counter
	ItemsDroppedTotal  prometheus.Counter
	HarvestsTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Total catalog pages processed, by outcome.",
		},
		[]string{"status"},
	)
	pageFetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_page_fetch_duration_seconds",
			Help:    "Latency of catalog page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsInserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_items_inserted_total",
			Help: "Total product rows written to storage.",
		},
	)
	itemsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_items_dropped_total",
			Help: "Total malformed catalog items dropped during normalization.",
		},
	)
	harvests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_harvests_total",
			Help: "Total harvest runs, by terminal outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(pages, pageFetchDuration, itemsInserted, itemsDropped, harvests)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		PageFetchDuration:  pageFetchDuration,
		ItemsInsertedTotal: itemsInserted,
		ItemsDroppedTotal:  itemsDropped,
		HarvestsTotal:      harvests,
	}
}

// IncPage increments the pages counter for a status label.
func (m *Metrics) IncPage(status string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.PageFetchDuration.Observe(d.Seconds())
}

// AddInserted adds to the inserted rows counter.
func (m *Metrics) AddInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsInsertedTotal.Add(float64(n))
}

// AddDropped adds to the dropped items counter.
func (m *Metrics) AddDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsDroppedTotal.Add(float64(n))
}

// IncHarvest increments the harvests counter for an outcome label.
func (m *Metrics) IncHarvest(outcome string) {
	if m == nil {
		return
	}
	m.HarvestsTotal.WithLabelValues(outcome).Inc()
}
