/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For
  3. Logger:     Request logging through zap (see requestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the operator UI

ROUTE GROUPS:
  /healthz              DB ping
  /metrics              Prometheus
  /api/schedules/*      Validation, conflict checks, bulk commit, updates
  /api/sessions/*       Enrolment and lifecycle
  /api/class-options/*  Class option catalog
  /api/events           Outbox

SECURITY NOTE:
  No authentication middleware. Deploy behind the school's auth proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kdl/schedule-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/validate", h.ValidateSlots)
			r.Post("/conflict", h.CheckConflict)
			r.Post("/conflicts", h.CheckConflicts)
			r.Post("/preview", h.PreviewBulkSchedules)
			r.Post("/bulk", h.CreateBulkSchedules)
			r.Get("/{id}", h.GetSchedule)
			r.Patch("/{id}", h.UpdateSchedule)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Get("/{id}/schedules", h.ListSessionSchedules)
			r.Post("/{id}/assign", h.AssignSession)
			r.Post("/{id}/complete", h.CompleteSession)
			r.Post("/{id}/cancel", h.CancelSession)
			r.Post("/{id}/extend", h.ExtendSession)
			r.Post("/{id}/invoice", h.MarkInvoiced)
			r.Post("/{id}/payment", h.RecordPayment)
		})

		r.Route("/class-options", func(r chi.Router) {
			r.Get("/", h.ListClassOptions)
			r.Post("/", h.SaveClassOption)
			r.Get("/{id}", h.GetClassOption)
			r.Post("/{id}/deactivate", h.DeactivateClassOption)
		})

		r.Get("/events", h.ListEvents)
	})

	return r
}

// requestLogger writes one zap entry per request with the chi request ID.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
