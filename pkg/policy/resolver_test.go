package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/store/sqlite"
)

func setupResolver(t *testing.T) (*Resolver, *sqlite.EventStore) {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { es.Close() })

	c := cache.New(cache.WithSweepInterval(time.Hour))
	t.Cleanup(c.Close)

	queries := query.New(es.DB(), zerolog.Nop())
	return NewResolver(queries, c, zerolog.Nop()), es
}

func seedComplexity(t *testing.T, es *sqlite.EventStore, instanceID, ownerID string, minLength int) {
	t.Helper()
	now := time.Now().Unix()
	_, err := es.DB().Exec(`
		INSERT OR REPLACE INTO password_complexity_policies (instance_id, owner_id, min_length,
			has_uppercase, has_lowercase, has_number, has_symbol, created_at, changed_at)
		VALUES (?, ?, ?, 1, 1, 1, 0, ?, ?)`,
		instanceID, ownerID, minLength, now, now)
	if err != nil {
		t.Fatalf("seed policy: %v", err)
	}
}

func TestResolverMemoization(t *testing.T) {
	ctx := context.Background()
	r, es := setupResolver(t)

	seedComplexity(t, es, "inst-1", "org-1", 10)

	policy, err := r.PasswordComplexity(ctx, "inst-1", "org-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.MinLength != 10 {
		t.Fatalf("min length = %d, want 10", policy.MinLength)
	}

	// A direct table change is invisible until the memo expires or is
	// invalidated.
	seedComplexity(t, es, "inst-1", "org-1", 14)
	policy, err = r.PasswordComplexity(ctx, "inst-1", "org-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.MinLength != 10 {
		t.Fatalf("min length = %d, want memoized 10", policy.MinLength)
	}
}

func TestResolverInvalidation(t *testing.T) {
	ctx := context.Background()
	r, es := setupResolver(t)

	seedComplexity(t, es, "inst-1", "org-1", 10)
	if _, err := r.PasswordComplexity(ctx, "inst-1", "org-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	seedComplexity(t, es, "inst-1", "org-1", 14)
	r.Invalidate(&domain.Event{
		EventType:  domain.PasswordComplexityPolicyChangedType,
		InstanceID: "inst-1",
	})

	policy, err := r.PasswordComplexity(ctx, "inst-1", "org-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.MinLength != 14 {
		t.Fatalf("min length = %d, want refreshed 14", policy.MinLength)
	}
}

func TestResolverInstanceScopedInvalidation(t *testing.T) {
	ctx := context.Background()
	r, es := setupResolver(t)

	seedComplexity(t, es, "inst-1", "org-1", 10)
	seedComplexity(t, es, "inst-2", "org-9", 12)
	if _, err := r.PasswordComplexity(ctx, "inst-1", "org-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := r.PasswordComplexity(ctx, "inst-2", "org-9"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Only inst-1 entries drop; inst-2 stays memoized.
	seedComplexity(t, es, "inst-2", "org-9", 20)
	r.Invalidate(&domain.Event{
		EventType:  domain.PasswordComplexityPolicyChangedType,
		InstanceID: "inst-1",
	})

	policy, err := r.PasswordComplexity(ctx, "inst-2", "org-9")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if policy.MinLength != 12 {
		t.Fatalf("min length = %d, want memoized 12", policy.MinLength)
	}
}

func TestResolverIgnoresUnrelatedEvents(t *testing.T) {
	r, _ := setupResolver(t)
	// Must be a no-op, not a panic or a cache wipe.
	r.Invalidate(&domain.Event{EventType: domain.OrgAddedType, InstanceID: "inst-1"})
}

func TestResolverFeatures(t *testing.T) {
	ctx := context.Background()
	r, es := setupResolver(t)

	features, err := r.Features(ctx, "inst-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if features.TokenExchange {
		t.Fatal("unset features should read disabled")
	}

	_, err = es.DB().Exec(`INSERT INTO features (instance_id, features, updated_at)
		VALUES ('inst-1', '{"tokenExchange":true}', ?)`, time.Now().Unix())
	if err != nil {
		t.Fatalf("seed features: %v", err)
	}
	r.Invalidate(&domain.Event{EventType: domain.InstanceFeaturesSetType, InstanceID: "inst-1"})

	features, err = r.Features(ctx, "inst-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !features.TokenExchange {
		t.Fatal("tokenExchange should be enabled after invalidation")
	}
}
