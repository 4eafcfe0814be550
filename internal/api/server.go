// Package api provides the HTTP surface: public intake routes, admin routes and health checks.
package api

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/johnsosoka/jscom-newsletter-services/internal/service"
)

// Pinger is a dependency checked by /health/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	AdminAPIKey    string
	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	RequestTimeout time.Duration

	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	// With none, the connection address identifies the client.
	TrustedProxies []netip.Prefix

	// Checks maps a dependency name to its readiness probe.
	Checks map[string]Pinger
}

// Server handles HTTP requests for the newsletter registry.
type Server struct {
	intakeService service.IntakeService
	adminService  service.AdminService
	opts          Options
}

// NewServer creates a new API server instance.
func NewServer(intakeService service.IntakeService, adminService service.AdminService, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		intakeService: intakeService,
		adminService:  adminService,
		opts:          opts,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.HealthCheck)
	r.Get("/health/ready", s.ReadinessCheck)

	r.Route("/v1/newsletter", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", apiKeyHeader},
			MaxAge:         300,
		}))

		r.Group(func(r chi.Router) {
			if s.opts.RateLimit > 0 {
				r.Use(httprate.Limit(s.opts.RateLimit, s.opts.RateWindow, httprate.WithKeyFuncs(s.keyByClientIP)))
			}

			r.Post("/", s.Subscribe)
			r.Delete("/", s.Unsubscribe)
			r.Get("/status", s.Status)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAPIKey(s.opts.AdminAPIKey))

			r.Get("/subscribers", s.ListSubscribers)
			r.Get("/subscribers/{id}", s.GetSubscriber)
			r.Patch("/subscribers/{id}", s.UpdateSubscriber)
			r.Delete("/subscribers/{id}", s.DeleteSubscriber)
			r.Get("/stats", s.Stats)
		})
	})

	return r
}
