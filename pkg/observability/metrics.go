// Package observability holds the metric instruments shared across the
// service. Instruments are created on the global meter provider, so a
// deployment that never installs one pays only for no-op calls.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the instruments the request path records into.
type Metrics struct {
	HTTPRequests    metric.Int64Counter
	HTTPDuration    metric.Float64Histogram
	EventsAppended  metric.Int64Counter
	TokensIssued    metric.Int64Counter
	AuthzDenials    metric.Int64Counter
	PolicyCacheHits metric.Int64Counter
	PolicyCacheMiss metric.Int64Counter
}

// NewMetrics creates all instruments on the identra meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("identra")
	m := &Metrics{}
	var err error

	m.HTTPRequests, err = meter.Int64Counter(
		"http.requests",
		metric.WithDescription("Total HTTP requests served"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.requests: %w", err)
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.request.duration: %w", err)
	}

	m.EventsAppended, err = meter.Int64Counter(
		"eventstore.events.appended",
		metric.WithDescription("Total events appended to the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating eventstore.events.appended: %w", err)
	}

	m.TokensIssued, err = meter.Int64Counter(
		"oidc.tokens.issued",
		metric.WithDescription("Total access tokens issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating oidc.tokens.issued: %w", err)
	}

	m.AuthzDenials, err = meter.Int64Counter(
		"authz.denials",
		metric.WithDescription("Total authorization denials"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating authz.denials: %w", err)
	}

	m.PolicyCacheHits, err = meter.Int64Counter(
		"policy.cache.hits",
		metric.WithDescription("Policy resolver cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating policy.cache.hits: %w", err)
	}

	m.PolicyCacheMiss, err = meter.Int64Counter(
		"policy.cache.misses",
		metric.WithDescription("Policy resolver cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating policy.cache.misses: %w", err)
	}

	return m, nil
}
