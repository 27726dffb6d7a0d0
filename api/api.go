// Package api exposes the search harvester over HTTP: query creation,
// validation probes, history, status, and sorted product results.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-market-harvest/catalog"
	"github.com/aluiziolira/go-market-harvest/config"
	"github.com/aluiziolira/go-market-harvest/models"
	"github.com/aluiziolira/go-market-harvest/storage"
)

// Store is the persistence surface the handlers need.
type Store interface {
	CreateQuery(ctx context.Context, queryText string) (*models.SearchQuery, error)
	QueryByID(ctx context.Context, id int64) (*models.SearchQuery, error)
	QueryByText(ctx context.Context, queryText string) (*models.SearchQuery, error)
	ListQueries(ctx context.Context, limit, offset int) ([]*models.SearchQuery, int, error)
	DeleteQuery(ctx context.Context, id int64) error
	ListResults(ctx context.Context, queryID int64, sort []storage.SortField, limit, offset int) ([]*models.ProductResult, int, error)
}

// Prober performs a live catalog fetch without persisting anything.
type Prober interface {
	Fetch(ctx context.Context, queryText string, page int) catalog.Result
}

// Launcher starts a background harvest for a freshly created query.
type Launcher interface {
	Launch(queryID int64, queryText string) error
}

type resultCacheKey struct {
	queryID  int64
	page     int
	pageSize int
	sort     string
}

// Server wires the REST handlers to storage, the catalog prober and the
// harvest launcher. Result pages of completed queries are cached: rows
// never change once a harvest finishes.
type Server struct {
	store    Store
	prober   Prober
	launcher Launcher

	defaultPageSize int
	maxPageSize     int

	cache *lru.Cache[resultCacheKey, resultPage]
}

func NewServer(cfg *config.Config, store Store, prober Prober, launcher Launcher) (*Server, error) {
	cache, err := lru.New[resultCacheKey, resultPage](cfg.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	return &Server{
		store:           store,
		prober:          prober,
		launcher:        launcher,
		defaultPageSize: cfg.DisplayPageSize,
		maxPageSize:     cfg.MaxDisplayPageSize,
		cache:           cache,
	}, nil
}

// Router builds the HTTP routing table. Trailing slashes are stripped so
// both /api/search and /api/search/ reach the same handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/search", func(r chi.Router) {
			r.Post("/", s.handleCreateQuery)
			r.Get("/", s.handleHistory)
			r.Post("/validate_query", s.handleValidateQuery)
			r.Get("/{id}/status", s.handleStatus)
			r.Delete("/{id}", s.handleDeleteQuery)
		})
		r.Get("/products/result", s.handleResults)
	})

	return r
}

// purgeResults drops every cached page belonging to the given query.
func (s *Server) purgeResults(queryID int64) {
	for _, key := range s.cache.Keys() {
		if key.queryID == queryID {
			s.cache.Remove(key)
		}
	}
}
