package api

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/multitenancy"
	"github.com/identra/identra/pkg/observability"
	"github.com/identra/identra/pkg/oidc"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/store"
)

type routerConfig struct {
	jarKey  []byte
	metrics *observability.Metrics
}

// RouterOption configures the Router.
type RouterOption func(*routerConfig)

// WithJARKey sets the key used to verify signed request objects on the
// authorization endpoint.
func WithJARKey(key []byte) RouterOption {
	return func(c *routerConfig) { c.jarKey = key }
}

// WithMetrics records request count and latency per response.
func WithMetrics(m *observability.Metrics) RouterOption {
	return func(c *routerConfig) { c.metrics = m }
}

// Router owns the HTTP surface: the OAuth endpoints, the admin API, and
// health. All tenant-scoped routes resolve the instance before handlers
// run.
type Router struct {
	config   routerConfig
	es       store.EventStore
	queries  *query.Queries
	provider *oidc.Provider
	checker  *authz.Checker
	engine   *projection.Engine
	cache    *cache.Cache
	logger   zerolog.Logger
}

// NewRouter wires the HTTP surface over the assembled components.
func NewRouter(es store.EventStore, queries *query.Queries, provider *oidc.Provider,
	checker *authz.Checker, engine *projection.Engine, c *cache.Cache,
	logger zerolog.Logger, opts ...RouterOption) *Router {
	config := routerConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return &Router{
		config:   config,
		es:       es,
		queries:  queries,
		provider: provider,
		checker:  checker,
		engine:   engine,
		cache:    c,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// ConnectOptions returns the handler options SDK-facing connect servers
// mount alongside this router: the error interceptor that carries the
// domain error codes onto the wire.
func (rt *Router) ConnectOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithInterceptors(NewErrorInterceptor(rt.logger)),
	}
}

// Handler builds the routing tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.requestLogger)
	if rt.config.metrics != nil {
		r.Use(observability.HTTPMiddleware(rt.config.metrics))
	}

	r.Get("/healthz", rt.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(multitenancy.ResolveInstance(rt.queries))

		r.Route("/oauth/v2", func(r chi.Router) {
			r.Get("/authorize", rt.handleAuthorize)
			r.Post("/authorize/{requestID}/callback", rt.handleAuthorizeCallback)
			r.Post("/token", rt.handleToken)
			r.Post("/revoke", rt.handleRevoke)
		})
		r.Get("/.well-known/openid-configuration", rt.handleDiscovery)

		r.Route("/admin/v1", func(r chi.Router) {
			r.Get("/orgs", rt.handleSearchOrgs)
			r.Get("/orgs/{orgID}", rt.handleGetOrg)
			r.Get("/orgs/{orgID}/domains", rt.handleGetOrgDomains)
			r.Get("/users", rt.handleSearchUsers)
			r.Get("/users/{userID}", rt.handleGetUser)
			r.Post("/grants/check", rt.handleGrantCheck)
			r.Get("/projections", rt.handleProjectionList)
			r.Post("/projections/{name}/rebuild", rt.handleProjectionRebuild)
			r.Post("/projections/{name}/retry", rt.handleProjectionRetry)
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		rt.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
