package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/septivank/invoice-review/internal/logging"
	"go.uber.org/zap"
)

// NewRouter mounts the review API routes
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/health", h.health)

	r.Post("/uploads", h.upload)
	r.Get("/audit", h.auditTrail)

	r.Route("/records", func(r chi.Router) {
		r.Get("/", h.listPending)
		r.Post("/", h.intake)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/payload", h.edit)
			r.Post("/approve", h.decision(h.controller.Approve))
			r.Post("/reject", h.decision(h.controller.Reject))
			r.Post("/flag", h.decision(h.controller.Flag))
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logging.WithRequestID(logger, middleware.GetReqID(r.Context())).Debug("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
