package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polypheny/Polypheny-DB-sub058/internal/app"
	"github.com/polypheny/Polypheny-DB-sub058/internal/middleware"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	Logger *slog.Logger
	// Gatherer backs GET /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// CORSAllowedOrigins enables CORS for the listed origins when non-empty.
	CORSAllowedOrigins []string
	// RateLimiter, when set, limits the /v1 routes per client.
	RateLimiter *middleware.RateLimiter
}

// NewRouter mounts the health, metrics and /v1 lattice routes.
func NewRouter(a *app.App, opts RouterOptions) http.Handler {
	h := NewHandler(a, opts.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(chimw.Recoverer)
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.healthz)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Handler)
		}
		r.Get("/lattices", h.listLattices)
		r.Get("/lattices/{name}", h.getLattice)
		r.Get("/lattices/{name}/cardinality", h.getCardinality)
		r.Post("/lattices/{name}/tiles", h.defineTiles)
		r.Get("/materializations", h.listMaterializations)
	})
	return r
}
