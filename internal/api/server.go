// Package api is the control plane of the demo binary: a small HTTP
// surface for spawning tasks onto a running message loop from other
// goroutines, watching executor events, and scraping metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timokroeger/winmsg-executor/internal/config"
	"github.com/timokroeger/winmsg-executor/internal/events"
	"github.com/timokroeger/winmsg-executor/internal/logger"
	"github.com/timokroeger/winmsg-executor/pkg/executor"
	"github.com/timokroeger/winmsg-executor/pkg/future"
)

// Server represents the HTTP control plane
type Server struct {
	router *chi.Mux
	config *config.Config
	loop   executor.Handle
	broker *events.Broker
	http   *http.Server
}

// NewServer creates a new HTTP server posting work at the given loop
func NewServer(cfg *config.Config, loop executor.Handle, broker *events.Broker) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		loop:   loop,
		broker: broker,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	s.router.Group(func(r chi.Router) {
		r.Use(Auth(&s.config.Auth))
		r.Post("/tasks", s.handleSpawnTask)
		r.Delete("/loop", s.handleQuitLoop)
		r.Get("/events", s.handleEvents)
	})
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen serves until Shutdown or a listener error.
func (s *Server) Listen() error {
	logger.WithComponent("api").Info().Str("addr", s.http.Addr).Msg("control server listening")
	return s.http.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SpawnTaskRequest asks for a counter task on the loop thread.
type SpawnTaskRequest struct {
	Name   string `json:"name"`
	Yields int    `json:"yields"`
}

// handleSpawnTask posts a closure at the loop thread; the closure spawns
// a detached task there. Spawning cannot happen on the request goroutine
// because tasks are pinned to the thread that owns the message queue.
func (s *Server) handleSpawnTask(w http.ResponseWriter, r *http.Request) {
	var req SpawnTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Yields < 0 {
		http.Error(w, "yields must not be negative", http.StatusBadRequest)
		return
	}
	name := req.Name
	if name == "" {
		name = "task-" + uuid.New().String()[:8]
	}

	yields := req.Yields
	err := s.loop.Post(func() {
		h := executor.Spawn(future.Map(future.Yield(yields), func(struct{}) string { return name }))
		logger.WithComponent("api").Info().
			Str("task_id", h.TaskID()).
			Str("name", name).
			Int("yields", yields).
			Msg("task spawned from control server")
		h.Detach()
	})
	if err != nil {
		http.Error(w, "loop thread is gone", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"name":   name,
		"yields": req.Yields,
		"status": "scheduled",
	})
}

func (s *Server) handleQuitLoop(w http.ResponseWriter, _ *http.Request) {
	err := s.loop.Post(func() {
		executor.QuitMessageLoop()
	})
	if err != nil {
		http.Error(w, "loop thread is gone", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "quit requested"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Error().Err(err).Msg("failed to encode response")
	}
}
