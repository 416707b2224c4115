// identrad is the identity service daemon: it owns the event store,
// runs the projections, and serves the OAuth and admin HTTP surface.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	// keeper driver for base64key:// signing key URLs; cloud KMS
	// drivers are linked into dedicated builds instead.
	_ "gocloud.dev/secrets/localsecrets"

	"github.com/identra/identra/pkg/api"
	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/config"
	"github.com/identra/identra/pkg/eventbus"
	"github.com/identra/identra/pkg/observability"
	"github.com/identra/identra/pkg/oidc"
	"github.com/identra/identra/pkg/policy"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/projection/handlers"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/runner"
	"github.com/identra/identra/pkg/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("identrad exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	es, err := sqlite.NewEventStore(
		sqlite.WithDSN(cfg.Database.Path),
		sqlite.WithMaxOpenConns(cfg.Database.MaxOpenConns),
		sqlite.WithMaxIdleConns(cfg.Database.MaxIdleConns),
		sqlite.WithWALMode(cfg.Database.WALMode),
	)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer es.Close()

	keys, err := openKeySource(ctx, cfg.OIDC)
	if err != nil {
		return err
	}
	defer keys.Close()

	busURL := cfg.Bus.URL
	if cfg.Bus.Embedded {
		srv, err := eventbus.StartEmbeddedServer()
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer srv.Shutdown()
		busURL = srv.URL()
	}
	bus, err := eventbus.Connect(eventbus.Config{
		URL:            busURL,
		StreamName:     cfg.Bus.StreamName,
		StreamSubjects: []string{"events.>"},
		MaxAge:         cfg.Bus.MaxAge,
		MaxBytes:       cfg.Bus.MaxBytes,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer bus.Close()

	publishing := eventbus.NewPublishingStore(es, bus)

	queries := query.New(es.DB(), logger)
	c := cache.New(
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
	)
	defer c.Close()
	resolver := policy.NewResolver(queries, c, logger, policy.WithTTL(cfg.Cache.PolicyTTL))
	checker := authz.NewChecker(queries, resolver, logger)

	engine := projection.NewEngine(es.DB(), es,
		projection.WithInterval(cfg.Projections.Interval),
		projection.WithBatchSize(cfg.Projections.BatchSize),
		projection.WithFailureThreshold(cfg.Projections.FailureThreshold),
		projection.WithLogger(logger),
	)
	engine.Register(handlers.NewInstanceProjection())
	engine.Register(handlers.NewOrgProjection())
	engine.Register(handlers.NewProjectProjection())
	engine.Register(handlers.NewUserProjection())
	engine.Register(handlers.NewGrantProjection())
	engine.Register(handlers.NewSessionProjection())
	engine.Register(handlers.NewTokenProjection())
	engine.Register(handlers.NewPolicyProjection())

	wake, err := eventbus.WakeProjections(bus, engine, resolver)
	if err != nil {
		return fmt.Errorf("subscribe projection wake: %w", err)
	}
	defer wake.Unsubscribe()

	provider := oidc.NewProvider(publishing, queries, c, keys, logger,
		oidc.WithIssuer(cfg.OIDC.Issuer),
		oidc.WithAccessTokenLifetime(cfg.OIDC.AccessTokenLifetime),
		oidc.WithRefreshTokenLifetimes(cfg.OIDC.RefreshTokenLifetime, cfg.OIDC.RefreshIdleLifetime),
		oidc.WithAuthRequestTTL(cfg.OIDC.AuthRequestTTL),
		oidc.WithRequireSignedJAR(cfg.OIDC.RequireSignedJAR),
	)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	routerOpts := []api.RouterOption{api.WithMetrics(metrics)}
	jarKey, err := cfg.OIDC.JARKeyBytes()
	if err != nil {
		return err
	}
	if len(jarKey) > 0 {
		routerOpts = append(routerOpts, api.WithJARKey(jarKey))
	}
	router := api.NewRouter(publishing, queries, provider, checker, engine, c, logger, routerOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	services := []runner.Service{
		&projectionService{engine: engine},
		runner.NewHTTPService("http", httpServer),
	}
	r := runner.New(services,
		runner.WithLogger(logger),
		runner.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	logger.Info().Str("addr", cfg.Server.Addr()).Str("issuer", cfg.OIDC.Issuer).Msg("identrad starting")
	return r.Run(ctx)
}

// openKeySource picks the signing key backend: a Go Cloud secrets
// keeper when configured, a static hex key otherwise.
func openKeySource(ctx context.Context, cfg config.OIDCConfig) (oidc.KeySource, error) {
	if cfg.KeeperURL != "" {
		ciphertext, err := base64.StdEncoding.DecodeString(cfg.KeyCiphertext)
		if err != nil {
			return nil, fmt.Errorf("decode oidc.key_ciphertext: %w", err)
		}
		return oidc.NewSecretKeySource(ctx, cfg.KeeperURL, ciphertext)
	}
	key, err := cfg.SigningKeyBytes()
	if err != nil {
		return nil, err
	}
	return oidc.NewStaticKeySource(key), nil
}

// projectionService runs the projection engine as a managed service.
// Start drains pending events before the HTTP listener comes up so
// queries never serve a cold read model.
type projectionService struct {
	engine *projection.Engine
}

func (s *projectionService) Name() string { return "projections" }

func (s *projectionService) Start(ctx context.Context) error {
	if err := s.engine.CatchUp(ctx); err != nil {
		return err
	}
	s.engine.Start(context.Background())
	return nil
}

func (s *projectionService) Stop(context.Context) error {
	s.engine.Stop()
	return nil
}
