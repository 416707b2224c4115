// Package runner starts services in order, waits for a shutdown
// signal, and stops them in reverse order within a timeout.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner manages the lifecycle of a set of services.
type Runner struct {
	services        []Service
	logger          zerolog.Logger
	shutdownTimeout time.Duration
	startupTimeout  time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithShutdownTimeout bounds graceful shutdown. Default 30s.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.shutdownTimeout = timeout }
}

// WithStartupTimeout bounds each service start. Default 1m.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.startupTimeout = timeout }
}

// New creates a Runner over the given services.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          zerolog.Nop(),
		shutdownTimeout: 30 * time.Second,
		startupTimeout:  time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts all services in registration order and blocks until the
// context is cancelled or a shutdown signal arrives, then stops them in
// reverse order. A failed start stops the services already running.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		WaitForShutdownSignal(ctx)
		cancel()
	}()

	r.logger.Info().Int("count", len(r.services)).Msg("starting services")
	started := []Service{}

	for _, service := range r.services {
		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := service.Start(startCtx)
		startCancel()

		if err != nil {
			r.logger.Error().Err(err).Str("service", service.Name()).Msg("service failed to start")
			if stopErr := r.stopServices(started); stopErr != nil {
				r.logger.Error().Err(stopErr).Msg("rollback stop failed")
			}
			return fmt.Errorf("start service %s: %w", service.Name(), err)
		}

		started = append(started, service)
		r.logger.Info().Str("service", service.Name()).Msg("service started")
	}

	<-ctx.Done()
	r.logger.Info().Dur("timeout", r.shutdownTimeout).Msg("shutting down")
	return r.stopServices(started)
}

// stopServices stops services concurrently within the shutdown timeout.
// Reverse iteration keeps dependents ahead of their dependencies.
func (r *Runner) stopServices(services []Service) error {
	if len(services) == 0 {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(services))

	for i := len(services) - 1; i >= 0; i-- {
		service := services[i]
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			if err := svc.Stop(shutdownCtx); err != nil {
				r.logger.Error().Err(err).Str("service", svc.Name()).Msg("service stop failed")
				errCh <- fmt.Errorf("stop %s: %w", svc.Name(), err)
				return
			}
			r.logger.Info().Str("service", svc.Name()).Msg("service stopped")
		}(service)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errCh)
		var errs []error
		for err := range errCh {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded after %s", r.shutdownTimeout)
	}
}

// HealthCheck asks every health-aware service for its status.
func (r *Runner) HealthCheck(ctx context.Context) error {
	for _, service := range r.services {
		if hc, ok := service.(HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				return fmt.Errorf("service %s unhealthy: %w", service.Name(), err)
			}
		}
	}
	return nil
}
