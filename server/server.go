// Package server exposes health, status and manual poll endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"homerun-notifier/pkg/highlight"
	"homerun-notifier/poll"
)

const defaultRecentLimit = 20

// Poller runs cycles and reports watcher state.
type Poller interface {
	Cycle(ctx context.Context) (poll.Outcome, error)
	Snapshot() poll.State
}

// Archive lists recently delivered notifications.
type Archive interface {
	Recent(ctx context.Context, limit int) ([]*highlight.Record, error)
}

// Server handles HTTP requests.
type Server struct {
	poller  Poller
	archive Archive
	logger  *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Poller  Poller
	Archive Archive // Optional
	Logger  *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		poller:  cfg.Poller,
		archive: cfg.Archive,
		logger:  cfg.Logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/recent", s.handleRecent)
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute, // A manual poll can take as long as a cycle
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
		return
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered")

	outcome, err := s.poller.Cycle(r.Context())
	resp := map[string]string{"status": "completed", "outcome": string(outcome)}
	status := http.StatusOK
	if err != nil {
		s.logger.Error("Poll check failed", "outcome", outcome, "error", err)
		resp["status"] = "failed"
		resp["error"] = err.Error()
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.poller.Snapshot())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		http.Error(w, "Archive not configured", http.StatusNotFound)
		return
	}

	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list archived notifications", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*highlight.Record{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
