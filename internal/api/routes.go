package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured. A nil limiter
// disables rate limiting on the data routes. trustProxy takes the client IP
// from X-Forwarded-For/X-Real-IP; otherwise any caller could pick its own
// rate limit bucket by setting those headers.
func NewRouter(h *Handler, limiter *RateLimiter, trustProxy bool) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/data", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Use(CredentialsMiddleware)
		r.Get("/start/{companyName}", h.StartIngestion)
		r.Post("/upload/{companyName}", h.UploadData)
	})

	return r
}
