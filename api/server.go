// Package api exposes the service over HTTP: a run trigger for the
// external scheduler, read-only endpoints for the dashboard, and MCP
// tools for agent access.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"idlwatch/internal/store"
	"idlwatch/monitor"
	"idlwatch/notify"
)

// Pipeline runs one monitoring pass.
type Pipeline interface {
	Run(ctx context.Context) (*monitor.RunResult, error)
}

// Notifier drains pending changes per channel.
type Notifier interface {
	SendPending(ctx context.Context, channel string) (*notify.SendResult, error)
	Channels() []string
}

// Config controls the HTTP surface.
type Config struct {
	Listen string
	APIKey string
}

// Server is the HTTP boundary of the service.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	store      *store.Store
	pipeline   Pipeline
	notifier   Notifier
	logger     *slog.Logger
}

// NewServer wires the router. APIKey must be set; every /api route
// requires it.
func NewServer(cfg Config, st *store.Store, pipeline Pipeline, notifier Notifier, logger *slog.Logger) (*Server, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api: API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    st,
		pipeline: pipeline,
		notifier: notifier,
		logger:   logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:             slog.LevelDebug,
		Schema:            httplog.SchemaECS.Concise(true),
		LogRequestHeaders: []string{},
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.APIKey))
		r.Post("/runs", s.handleRun)
		r.Get("/targets", s.handleListTargets)
		r.Get("/changes", s.handleRecentChanges)
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the router, for tests and for mounting elsewhere.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// apiKeyAuth validates the X-API-Key header against the configured key.
func apiKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if got == "" || got != key {
				respondError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runResponse is the POST /runs payload: the run summary plus the
// per-channel fan-out results.
type runResponse struct {
	Run           *monitor.RunResult            `json:"run"`
	Notifications map[string]*notify.SendResult `json:"notifications"`
}

// handleRun executes the full cycle: one monitoring pass, then a
// fan-out pass on every configured channel. This is the external
// scheduler's single entry point.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, err := s.pipeline.Run(ctx)
	if err != nil {
		s.logger.Error("run failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	notifications := make(map[string]*notify.SendResult)
	for _, channel := range s.notifier.Channels() {
		res, err := s.notifier.SendPending(ctx, channel)
		if err != nil {
			s.logger.Error("fan-out failed", "channel", channel, "error", err)
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		notifications[channel] = res
	}

	respondJSON(w, http.StatusOK, runResponse{Run: run, Notifications: notifications})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.ListTargets(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if targets == nil {
		targets = []*store.Target{}
	}
	respondJSON(w, http.StatusOK, targets)
}

func (s *Server) handleRecentChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be 1..500")
			return
		}
		limit = n
	}

	changes, err := s.store.RecentChanges(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if changes == nil {
		changes = []*store.ChangeRecord{}
	}
	respondJSON(w, http.StatusOK, changes)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
