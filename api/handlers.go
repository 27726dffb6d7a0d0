package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aluiziolira/go-market-harvest/models"
	"github.com/aluiziolira/go-market-harvest/parser"
	"github.com/aluiziolira/go-market-harvest/storage"
)

type historyPage struct {
	Count       int                   `json:"count"`
	CurrentPage int                   `json:"current_page"`
	TotalPages  int                   `json:"total_pages"`
	Results     []*models.SearchQuery `json:"results"`
}

type resultPage struct {
	Count       int                     `json:"count"`
	CurrentPage int                     `json:"current_page"`
	TotalPages  int                     `json:"total_pages"`
	SearchQuery *models.SearchQuery     `json:"search_query"`
	Results     []*models.ProductResult `json:"results"`
}

// sortParams maps request parameters to result columns, in the order the
// columns are applied when several are present.
var sortParams = []struct {
	param  string
	column string
}{
	{param: "name_sort", column: "name"},
	{param: "brand_sort", column: "brand"},
	{param: "supplier_sort", column: "supplier"},
	{param: "supplier_rating_sort", column: "supplier_rating"},
	{param: "review_rating_sort", column: "review_rating"},
	{param: "feedbacks_sort", column: "feedbacks"},
	{param: "price_sort", column: "price"},
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QueryText string `json:"query_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := parser.ValidateQueryText(body.QueryText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query, err := s.store.CreateQuery(r.Context(), body.QueryText)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateQuery) {
			writeError(w, http.StatusConflict, "search query already exists")
			return
		}
		slog.Error("creating search query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.launcher.Launch(query.ID, query.QueryText); err != nil {
		slog.Error("launching harvest", "query_id", query.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	writeJSON(w, http.StatusCreated, query)
}

func (s *Server) handleValidateQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := parser.ValidateQueryText(body.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.QueryByText(r.Context(), body.Query); err == nil {
		writeError(w, http.StatusConflict, "search query already exists")
		return
	} else if !errors.Is(err, storage.ErrQueryNotFound) {
		slog.Error("looking up search query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result := s.prober.Fetch(r.Context(), body.Query, 1)
	if !result.Valid {
		writeError(w, http.StatusBadRequest, result.ErrorMessage)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"total": result.Total})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, pageSize := s.paginationParams(r)

	queries, count, err := s.store.ListQueries(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		slog.Error("listing search queries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if queries == nil {
		queries = []*models.SearchQuery{}
	}

	writeJSON(w, http.StatusOK, historyPage{
		Count:       count,
		CurrentPage: page,
		TotalPages:  totalPages(count, pageSize),
		Results:     queries,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query id")
		return
	}

	query, err := s.store.QueryByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrQueryNotFound) {
			writeError(w, http.StatusNotFound, "search query not found")
			return
		}
		slog.Error("looking up search query", "query_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, query)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query id")
		return
	}

	if err := s.store.DeleteQuery(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrQueryNotFound) {
			writeError(w, http.StatusNotFound, "search query not found")
			return
		}
		slog.Error("deleting search query", "query_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.purgeResults(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query id")
		return
	}

	query, err := s.store.QueryByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrQueryNotFound) {
			writeError(w, http.StatusNotFound, "search query not found")
			return
		}
		slog.Error("looking up search query", "query_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	page, pageSize := s.paginationParams(r)
	sort := sortFromQuery(r.URL.Query())

	key := resultCacheKey{queryID: id, page: page, pageSize: pageSize, sort: sortKey(sort)}
	if query.IsCompleted {
		if cached, ok := s.cache.Get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	results, count, err := s.store.ListResults(r.Context(), id, sort, pageSize, (page-1)*pageSize)
	if err != nil {
		slog.Error("listing product results", "query_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if results == nil {
		results = []*models.ProductResult{}
	}

	envelope := resultPage{
		Count:       count,
		CurrentPage: page,
		TotalPages:  totalPages(count, pageSize),
		SearchQuery: query,
		Results:     results,
	}
	if query.IsCompleted {
		s.cache.Add(key, envelope)
	}

	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) paginationParams(r *http.Request) (page, pageSize int) {
	page = intParam(r.URL.Query(), "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize = intParam(r.URL.Query(), "page_size", s.defaultPageSize)
	if pageSize < 1 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	return page, pageSize
}

func intParam(values url.Values, name string, fallback int) int {
	raw := values.Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// sortFromQuery collects the *_sort parameters that carry a recognized
// direction, keeping the documented column order.
func sortFromQuery(values url.Values) []storage.SortField {
	var sort []storage.SortField
	for _, sp := range sortParams {
		switch values.Get(sp.param) {
		case "asc":
			sort = append(sort, storage.SortField{Column: sp.column})
		case "desc":
			sort = append(sort, storage.SortField{Column: sp.column, Desc: true})
		}
	}
	return sort
}

func sortKey(sort []storage.SortField) string {
	if len(sort) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sort))
	for _, field := range sort {
		direction := "asc"
		if field.Desc {
			direction = "desc"
		}
		parts = append(parts, field.Column+":"+direction)
	}
	return strings.Join(parts, ",")
}

func totalPages(count, pageSize int) int {
	if count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
