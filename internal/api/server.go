/*
Package api exposes the search engine over HTTP.

Routes:

	GET  /health              index sizes
	POST /api/semantic-search run a search
	POST /api/sync-tools      re-index the aggregator catalog
	POST /api/index-server    index one server summary
	GET  /api/servers         list indexed server summaries
	GET  /metrics             Prometheus metrics
	GET  /                    service information
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/search"
	"github.com/khanglvm/tool-hub-search/internal/version"
	"github.com/khanglvm/tool-hub-search/internal/workflow"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Searcher runs search requests.
type Searcher interface {
	Run(ctx context.Context, req workflow.Request) (workflow.Response, error)
}

// Indexer maintains the indices.
type Indexer interface {
	Sync(ctx context.Context) (indexing.Report, error)
	IndexServerSummary(ctx context.Context, s indexing.ServerSummary) error
	ListServers(ctx context.Context) ([]indexing.ServerSummary, error)
	Counts(ctx context.Context) (tools, servers int, err error)
}

// Server holds the HTTP handlers.
type Server struct {
	searcher Searcher
	indexer  Indexer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewServer creates the handler set. m may be nil.
func NewServer(searcher Searcher, indexer Indexer, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{searcher: searcher, indexer: indexer, metrics: m, logger: logger}
}

// Router builds the route table with middleware applied.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger, s.metrics))

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/semantic-search", s.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/api/sync-tools", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/index-server", s.handleIndexServer).Methods(http.MethodPost)
	r.HandleFunc("/api/servers", s.handleListServers).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *search.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Tool Hub Semantic Search API",
		"version": version.Current(),
		"status":  "running",
		"endpoints": map[string]string{
			"health":       "/health",
			"search":       "/api/semantic-search",
			"sync":         "/api/sync-tools",
			"index_server": "/api/index-server",
			"list_servers": "/api/servers",
			"metrics":      "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tools, servers, err := s.indexer.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("health check failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"tools_indexed":   tools,
		"servers_indexed": servers,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.searcher.Run(r.Context(), req)
	if err != nil {
		var verr *search.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("search failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncResponse struct {
	Success      bool                 `json:"success"`
	ToolsIndexed int                  `json:"tools_indexed"`
	Failed       int                  `json:"failed"`
	Skipped      int                  `json:"skipped"`
	Removed      int                  `json:"removed"`
	Errors       []indexing.ToolError `json:"errors,omitempty"`
	Message      string               `json:"message"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.indexer.Sync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("sync failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Success:      true,
		ToolsIndexed: report.Indexed,
		Failed:       report.Failed,
		Skipped:      report.Skipped,
		Removed:      report.Removed,
		Errors:       report.Errors,
		Message:      fmt.Sprintf("Successfully indexed %d tools", report.Indexed),
	})
}

func (s *Server) handleIndexServer(w http.ResponseWriter, r *http.Request) {
	var summary indexing.ServerSummary
	if err := decodeBody(w, r, &summary); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if summary.ServerName == "" {
		writeError(w, http.StatusBadRequest, &search.ValidationError{Field: "server_name", Reason: "must not be empty"})
		return
	}

	if err := s.indexer.IndexServerSummary(r.Context(), summary); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("index server failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Indexed server: " + summary.ServerName,
	})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.indexer.ListServers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list servers failed: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}
