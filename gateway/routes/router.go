package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nexumfi/core/events"
	"nexumfi/core/ledger"
	"nexumfi/gateway/middleware"
)

// Config wires the ledger and its collaborators into the HTTP surface.
type Config struct {
	Ledger             *ledger.Ledger
	Journal            EventJournal
	Stream             *events.Stream
	StreamWriteTimeout time.Duration
	Authenticator      *middleware.Authenticator
	RateLimiter        *middleware.RateLimiter
	Observability      *middleware.Observability
	CORS               middleware.CORSConfig
	MetricsPath        string
	ServiceName        string
	Tracing            bool
}

type moduleRoute struct {
	name   string
	prefix string
	mount  func(chi.Router)
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("routes: ledger required")
	}
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := cfg.Ledger.Initialized(req.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	modules := []moduleRoute{
		{name: "registry", prefix: "/v1/registry", mount: (&registryRoutes{ledger: cfg.Ledger}).mount},
		{name: "vault", prefix: "/v1/vault", mount: (&vaultRoutes{ledger: cfg.Ledger}).mount},
		{name: "borrow", prefix: "/v1/borrow", mount: (&borrowRoutes{ledger: cfg.Ledger}).mount},
		{name: "events", prefix: "/v1/events", mount: (&eventRoutes{
			journal:      cfg.Journal,
			stream:       cfg.Stream,
			writeTimeout: cfg.StreamWriteTimeout,
		}).mount},
	}
	for _, module := range modules {
		module := module
		r.Route(module.prefix, func(sr chi.Router) {
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(module.name))
			}
			if cfg.Authenticator != nil {
				sr.Use(cfg.Authenticator.Middleware())
			}
			if obs != nil {
				sr.Use(obs.Middleware(module.name))
			}
			module.mount(sr)
		})
	}

	if obs != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, obs.MetricsHandler())
	}

	if !cfg.Tracing {
		return r, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "nexumd"
	}
	return otelhttp.NewHandler(r, name), nil
}
