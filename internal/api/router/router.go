package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/physiodesk/scheduler/internal/api"
	httpmiddleware "github.com/physiodesk/scheduler/internal/http/middleware"
	"github.com/physiodesk/scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SchedulingHandler  *api.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		h := cfg.SchedulingHandler
		r.Get("/board", h.GetBoard)

		r.Post("/appointments", h.CreateAppointment)
		r.Post("/appointments/{id}/cancel", h.CancelAppointment)

		r.Get("/queue", h.ListQueue)
		r.Post("/queue", h.AddQueueItem)
		r.Delete("/queue/{id}", h.RemoveQueueItem)
		r.Post("/queue/{id}/place", h.PlaceQueueItem)
		r.Post("/queue/auto-assign", h.AutoAssign)

		r.Post("/plans/cache/invalidate", h.InvalidatePlanCache)
	})

	return r
}
