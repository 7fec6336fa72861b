// Package api exposes the worker's operational status over HTTP. It backs
// the dialerctl check-status command and load balancer health checks; it is
// not a campaign management surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/dialer/internal/pkg/httputil"
	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/worker"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status       string            `json:"status"`
	Orchestrator worker.Stats      `json:"orchestrator"`
	LiveWorkers  []string          `json:"liveWorkers"`
	Breakers     map[string]string `json:"breakers"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Handlers serves the status endpoints.
type Handlers struct {
	orch *worker.Orchestrator
	q    *queue.Queue
}

func NewHandlers(orch *worker.Orchestrator, q *queue.Queue) *Handlers {
	return &Handlers{orch: orch, q: q}
}

// SetupRoutes configures the status router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Get("/status", h.Status)

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	stats := h.orch.Stats()
	live, err := h.q.LiveWorkers(ctx)
	if err != nil {
		live = nil
	}

	status := "running"
	if !stats.Running {
		status = "stopped"
	}
	httputil.OK(w, StatusResponse{
		Status:       status,
		Orchestrator: stats,
		LiveWorkers:  live,
		Breakers:     h.orch.BreakerStates(),
		Timestamp:    time.Now().UTC(),
	})
}
