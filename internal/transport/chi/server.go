package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/dataset"
	"github.com/kailas-cloud/martsearch/internal/domain"
	logpkg "github.com/kailas-cloud/martsearch/internal/logger"
	"github.com/kailas-cloud/martsearch/internal/metrics"
	healthuc "github.com/kailas-cloud/martsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/martsearch/internal/usecase/search"
)

// Searcher is the aggregator surface served over HTTP.
type Searcher interface {
	Search(ctx context.Context, query string, page int, useCache bool) (*searchuc.Result, error)
	QuickSearch(ctx context.Context, query string, page int) ([]domain.Document, error)
	Count(ctx context.Context, query string) (int, error)
	ClearCache(ctx context.Context) error
	Datasets() []dataset.Config
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeIndexUnavailable = "index_unavailable"
	CodeIndexSearchError = "index_search_error"
	CodeInternalError    = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Errors  []domain.SearchError `json:"errors,omitempty"`
}

// SearchResponse is the JSON body of GET /api/v1/search.
type SearchResponse struct {
	Query      string               `json:"query"`
	Pagination domain.Pagination    `json:"pagination"`
	Results    []SearchResultItem   `json:"results"`
	Errors     []domain.SearchError `json:"errors"`
}

// SearchResultItem is one record of a search page.
type SearchResultItem struct {
	Key string `json:"key"`
	*domain.Record
	Highlighting map[string][]string `json:"highlighting,omitempty"`
}

// Server serves the JSON API.
type Server struct {
	search Searcher
	health HealthChecker
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{search: search, health: health, logger: logger}
}

// Routes builds the router with the standard middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.Search)
		r.Get("/datasets", s.ListDatasets)
		r.Get("/index/search", s.IndexSearch)
		r.Get("/index/count", s.IndexCount)
		r.Delete("/cache", s.ClearCache)
		r.Get("/health", s.HealthCheck)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

type searchParams struct {
	Query    string
	Page     int
	UseCache bool
}

func bindSearchParams(r *http.Request) (searchParams, error) {
	p := searchParams{Page: 1, UseCache: true}
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "q", q, &p.Query); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &p.Page); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "use_cache", q, &p.UseCache); err != nil {
		return p, err
	}
	if p.Query == "" {
		return p, errors.New("query parameter q must not be empty")
	}
	return p, nil
}

// Search handles GET /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	p, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	res, err := s.search.Search(r.Context(), p.Query, p.Page, p.UseCache)
	if err != nil {
		s.handleIndexError(w, r, err, res)
		return
	}

	items := make([]SearchResultItem, 0, len(res.Keys))
	for _, key := range res.Keys {
		rec, ok := res.Aggregate[key]
		if !ok {
			continue
		}
		items = append(items, SearchResultItem{Key: key, Record: rec, Highlighting: res.Highlighting[key]})
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:      res.Query,
		Pagination: res.Pagination,
		Results:    items,
		Errors:     res.Errors(),
	})
}

// ListDatasets handles GET /api/v1/datasets.
func (s *Server) ListDatasets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"datasets": s.search.Datasets()})
}

// IndexSearch handles GET /api/v1/index/search.
func (s *Server) IndexSearch(w http.ResponseWriter, r *http.Request) {
	p, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	docs, err := s.search.QuickSearch(r.Context(), p.Query, p.Page)
	if err != nil {
		s.handleIndexError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": p.Query, "page": domain.NormalizePage(p.Page), "documents": docs})
}

// IndexCount handles GET /api/v1/index/count.
func (s *Server) IndexCount(w http.ResponseWriter, r *http.Request) {
	p, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	n, err := s.search.Count(r.Context(), p.Query)
	if err != nil {
		s.handleIndexError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": p.Query, "count": n})
}

// ClearCache handles DELETE /api/v1/cache.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.search.ClearCache(r.Context()); err != nil {
		logpkg.For(r.Context(), s.logger).Error("clear cache failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /api/v1/health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleIndexError maps index failures: a rejected query is the caller's fault (400),
// anything else means search is unavailable (503).
func (s *Server) handleIndexError(w http.ResponseWriter, r *http.Request, err error, res *searchuc.Result) {
	var errs []domain.SearchError
	if res != nil {
		errs = res.Errors()
	}
	var se domain.SearchError
	if len(errs) == 0 && errors.As(err, &se) {
		errs = []domain.SearchError{se}
	}

	log := logpkg.For(r.Context(), s.logger)
	log.Warn("index error", zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrIndexSearch):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code: CodeIndexSearchError, Message: "the search index rejected the query", Errors: errs,
		})
	case errors.Is(err, domain.ErrIndexUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Code: CodeIndexUnavailable, Message: "search is currently unavailable", Errors: errs,
		})
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
