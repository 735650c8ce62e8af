package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/metrics"
)

// Deps are the components NewRouter wires into routes.
type Deps struct {
	Reader      *board.Reader
	Claimer     *board.Claimer
	Provisioner *board.Provisioner

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Gatherer backs GET /metrics. Nil leaves the route unmounted.
	Gatherer prometheus.Gatherer

	// Limiter guards the write routes. Nil disables limiting.
	Limiter *RateLimiter
}

// NewRouter builds the HTTP API.
//
// Middleware order:
//
//	RequestID → Recovery → Logging
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(deps.Reader, deps.Claimer, deps.Provisioner, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(recoveryMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/board", func(r chi.Router) {
		r.With(deps.Limiter.Middleware("board")).Post("/", h.CreateBoard)
		r.Get("/{boardId}", h.GetBoard)
		r.Get("/{boardId}/claims/{claimId}", h.GetClaim)
	})
	r.With(deps.Limiter.Middleware("claim")).Post("/claim", h.Claim)

	r.Get("/seed", h.Seed)
	r.Get("/seed/{boardId}", h.Seed)

	r.Get("/healthz", h.Healthz)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
