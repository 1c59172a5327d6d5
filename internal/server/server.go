// Package server exposes generated reports and run history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/lance13c/qarun/internal/database"
	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/types"
)

// History is the read side of the run history store.
type History interface {
	GetRecentRuns(limit int) ([]database.RunSummary, error)
	GetRun(runID string) (*types.Report, error)
	GetStatistics() (map[string]interface{}, error)
}

const defaultRunLimit = 20

// Server serves the reports directory and history endpoints.
type Server struct {
	reportsDir string
	history    History
	router     *mux.Router
}

// New builds the router. history may be nil, in which case the history
// endpoints answer 503.
func New(reportsDir string, history History) *Server {
	s := &Server{reportsDir: reportsDir, history: history, router: mux.NewRouter()}

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.handleRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleRun).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.PathPrefix("/reports/").Handler(
		http.StripPrefix("/reports/", http.FileServer(http.Dir(reportsDir))),
	).Methods("GET")

	s.router.Use(logRequests)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Info("serving reports from %s on %s", s.reportsDir, addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.hasHistory(w) {
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.history.GetRecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.RunSummary{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.hasHistory(w) {
		return
	}
	id := mux.Vars(r)["id"]
	rep, err := s.history.GetRun(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.hasHistory(w) {
		return
	}
	stats, err := s.history.GetStatistics()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) hasHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		http.Error(w, "history is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response: %v", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
