package projection_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/projection/handlers"
	storelib "github.com/identra/identra/pkg/store"
	"github.com/identra/identra/pkg/store/sqlite"
)

func setupEngine(t *testing.T, opts ...projection.EngineOption) (*sqlite.EventStore, *projection.Engine) {
	t.Helper()
	es, err := sqlite.NewEventStore(
		sqlite.WithMemoryDatabase(),
		sqlite.WithWALMode(false),
	)
	if err != nil {
		t.Fatalf("failed to create event store: %v", err)
	}
	t.Cleanup(func() { es.Close() })
	return es, projection.NewEngine(es.DB(), es, opts...)
}

func appendOrg(t *testing.T, es *sqlite.EventStore, instanceID, orgID, name string) {
	t.Helper()
	org := domain.NewOrg(orgID, instanceID)
	if err := org.Add("ev-"+orgID, "tester", name); err != nil {
		t.Fatalf("failed to add org: %v", err)
	}
	if err := es.Append(context.Background(), 0, org.UncommittedEvents()); err != nil {
		t.Fatalf("failed to append org events: %v", err)
	}
}

func TestEngineCatchUp(t *testing.T) {
	ctx := context.Background()
	es, engine := setupEngine(t)
	engine.Register(handlers.NewOrgProjection())

	appendOrg(t, es, "inst-1", "org-1", "ACME")
	appendOrg(t, es, "inst-2", "org-2", "Globex")

	if err := engine.CatchUp(ctx); err != nil {
		t.Fatalf("catch-up failed: %v", err)
	}

	var name string
	err := es.DB().QueryRow(
		`SELECT name FROM orgs WHERE instance_id = ? AND id = ?`, "inst-1", "org-1",
	).Scan(&name)
	if err != nil {
		t.Fatalf("org row missing: %v", err)
	}
	if name != "ACME" {
		t.Errorf("expected name ACME, got %q", name)
	}

	state, bookmark, err := engine.Status(ctx, handlers.OrgProjectionName)
	if err != nil {
		t.Fatalf("failed to read status: %v", err)
	}
	if state.Status != storelib.ProjectionStatusReady {
		t.Errorf("expected READY, got %s", state.Status)
	}
	if bookmark.Position == 0 {
		t.Error("bookmark did not advance")
	}

	// A second catch-up must not duplicate rows.
	if err := engine.CatchUp(ctx); err != nil {
		t.Fatalf("second catch-up failed: %v", err)
	}
	var count int
	if err := es.DB().QueryRow(`SELECT COUNT(*) FROM orgs`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 org rows, got %d", count)
	}
}

func TestEngineFailedEvents(t *testing.T) {
	ctx := context.Background()
	es, engine := setupEngine(t, projection.WithFailureThreshold(3))

	poisoned := true
	p := projection.NewBuilder("poison").
		On(domain.OrgAddedType, func(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
			if poisoned {
				return errors.New("boom")
			}
			return nil
		}).
		Build()
	engine.Register(p)

	appendOrg(t, es, "inst-1", "org-1", "ACME")

	if err := engine.CatchUp(ctx); err != nil {
		t.Fatalf("catch-up failed: %v", err)
	}

	// Failure recorded, stream moved on.
	failed, err := engine.Bookmarks().FailedEvents(ctx, "poison")
	if err != nil {
		t.Fatalf("failed to list failures: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed event, got %d", len(failed))
	}
	if failed[0].FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", failed[0].FailureCount)
	}

	bookmark, err := engine.Bookmarks().Load(ctx, "poison")
	if err != nil {
		t.Fatalf("failed to load bookmark: %v", err)
	}
	if bookmark.Position == 0 {
		t.Error("bookmark did not skip past the failed event")
	}

	// Retry succeeds once the handler recovers.
	poisoned = false
	if err := engine.RetryFailed(ctx, "poison"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	failed, err = engine.Bookmarks().FailedEvents(ctx, "poison")
	if err != nil {
		t.Fatalf("failed to list failures: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("expected no failed events after retry, got %d", len(failed))
	}
}

func TestEngineFailureThresholdEscalates(t *testing.T) {
	ctx := context.Background()
	es, engine := setupEngine(t, projection.WithFailureThreshold(1))

	p := projection.NewBuilder("always-fails").
		On(domain.OrgAddedType, func(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
			return errors.New("boom")
		}).
		Build()
	engine.Register(p)

	appendOrg(t, es, "inst-1", "org-1", "ACME")

	if err := engine.CatchUp(ctx); err != nil {
		t.Fatalf("catch-up failed: %v", err)
	}

	state, _, err := engine.Status(ctx, "always-fails")
	if err != nil {
		t.Fatalf("failed to read status: %v", err)
	}
	if state.Status != storelib.ProjectionStatusFailed {
		t.Errorf("expected FAILED, got %s", state.Status)
	}
}

func TestEngineRebuild(t *testing.T) {
	ctx := context.Background()
	es, engine := setupEngine(t)
	engine.Register(handlers.NewOrgProjection())

	appendOrg(t, es, "inst-1", "org-1", "ACME")
	if err := engine.CatchUp(ctx); err != nil {
		t.Fatalf("catch-up failed: %v", err)
	}

	// Corrupt the read model, then rebuild from the log.
	if _, err := es.DB().Exec(`UPDATE orgs SET name = 'corrupted'`); err != nil {
		t.Fatalf("failed to corrupt read model: %v", err)
	}

	if err := engine.Rebuild(ctx, handlers.OrgProjectionName); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	var name string
	err := es.DB().QueryRow(
		`SELECT name FROM orgs WHERE instance_id = ? AND id = ?`, "inst-1", "org-1",
	).Scan(&name)
	if err != nil {
		t.Fatalf("org row missing after rebuild: %v", err)
	}
	if name != "ACME" {
		t.Errorf("expected rebuilt name ACME, got %q", name)
	}

	state, _, err := engine.Status(ctx, handlers.OrgProjectionName)
	if err != nil {
		t.Fatalf("failed to read status: %v", err)
	}
	if state.Status != storelib.ProjectionStatusReady {
		t.Errorf("expected READY after rebuild, got %s", state.Status)
	}
}
