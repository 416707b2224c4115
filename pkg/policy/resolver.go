// Package policy resolves effective policies across the org → instance →
// built-in fallback chain, memoizing results for a short time.
package policy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/query"
)

// Kind names a resolvable policy family.
type Kind string

const (
	KindLogin              Kind = "login"
	KindPasswordComplexity Kind = "password_complexity"
	KindFeatures           Kind = "features"
)

type resolverConfig struct {
	ttl time.Duration
}

// Option configures a Resolver.
type Option func(*resolverConfig)

// WithTTL sets how long resolved policies are memoized.
func WithTTL(ttl time.Duration) Option {
	return func(c *resolverConfig) { c.ttl = ttl }
}

// Resolver memoizes effective-policy lookups per (instance, org, kind).
// The query layer owns the fallback order; the resolver owns freshness.
type Resolver struct {
	queries *query.Queries
	cache   *cache.Cache
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewResolver creates a resolver with its own cache namespace.
func NewResolver(queries *query.Queries, c *cache.Cache, logger zerolog.Logger, opts ...Option) *Resolver {
	config := resolverConfig{ttl: 30 * time.Second}
	for _, opt := range opts {
		opt(&config)
	}
	return &Resolver{
		queries: queries,
		cache:   c,
		ttl:     config.ttl,
		logger:  logger.With().Str("component", "policy").Logger(),
	}
}

func cacheKey(kind Kind, instanceID, orgID string) string {
	return "policy:" + string(kind) + ":" + instanceID + ":" + orgID
}

// LoginPolicy returns the effective login policy for the org, or nil when
// neither the org nor the instance configured one.
func (r *Resolver) LoginPolicy(ctx context.Context, instanceID, orgID string) (*query.LoginPolicy, error) {
	key := cacheKey(KindLogin, instanceID, orgID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*query.LoginPolicy), nil
	}

	policy, err := r.queries.GetActiveLoginPolicy(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, policy, r.ttl)
	return policy, nil
}

// PasswordComplexity returns the effective complexity policy; the built-in
// default guarantees a non-nil result.
func (r *Resolver) PasswordComplexity(ctx context.Context, instanceID, orgID string) (*query.PasswordComplexityPolicy, error) {
	key := cacheKey(KindPasswordComplexity, instanceID, orgID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*query.PasswordComplexityPolicy), nil
	}

	policy, err := r.queries.GetPasswordComplexityPolicy(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, policy, r.ttl)
	return policy, nil
}

// Features returns the instance's feature flags; features have no org level.
func (r *Resolver) Features(ctx context.Context, instanceID string) (*domain.Features, error) {
	key := cacheKey(KindFeatures, instanceID, "")
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*domain.Features), nil
	}

	features, err := r.queries.GetInstanceFeatures(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, features, r.ttl)
	return features, nil
}

// Invalidate drops memoized policies affected by a policy or feature change
// event. Safe to call with any event; unrelated types are ignored.
func (r *Resolver) Invalidate(event *domain.Event) {
	var kind Kind
	switch event.EventType {
	case domain.LoginPolicyAddedType, domain.LoginPolicyChangedType, domain.LoginPolicyRemovedType:
		kind = KindLogin
	case domain.PasswordComplexityPolicyAddedType, domain.PasswordComplexityPolicyChangedType,
		domain.PasswordComplexityPolicyRemovedType:
		kind = KindPasswordComplexity
	case domain.InstanceFeaturesSetType, domain.InstanceFeaturesResetType:
		kind = KindFeatures
	default:
		return
	}

	// An instance-level change shifts the fallback for every org, so drop
	// the whole (kind, instance) slice. Org-level changes hit one key, but
	// the org key space is unbounded here and the glob keeps it simple.
	keys, err := r.cache.Keys(cacheKey(kind, event.InstanceID, "*"))
	if err != nil {
		r.logger.Error().Err(err).Msg("policy invalidation failed")
		return
	}
	if removed := r.cache.MDel(keys...); removed > 0 {
		r.logger.Debug().
			Str("event_type", event.EventType).
			Str("instance_id", event.InstanceID).
			Int("invalidated", removed).
			Msg("policy cache invalidated")
	}
}
