package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/identra/identra/pkg/domain"
	storelib "github.com/identra/identra/pkg/store"
	"github.com/identra/identra/pkg/store/sqlite"
)

func newEvent(id, instanceID, aggregateType, aggregateID, eventType string, sequence int64, constraints ...domain.UniqueConstraint) *domain.Event {
	return &domain.Event{
		ID:                id,
		InstanceID:        instanceID,
		ResourceOwner:     "org-1",
		AggregateType:     aggregateType,
		AggregateID:       aggregateID,
		Sequence:          sequence,
		EventType:         eventType,
		Editor:            "tester",
		CreatedAt:         time.Now().UTC(),
		Payload:           []byte(`{}`),
		UniqueConstraints: constraints,
	}
}

func TestEventStore(t *testing.T) {
	ctx := context.Background()

	es, err := sqlite.NewEventStore(
		sqlite.WithMemoryDatabase(),
		sqlite.WithWALMode(false),
	)
	if err != nil {
		t.Fatalf("failed to create event store: %v", err)
	}
	defer es.Close()

	t.Run("AppendAndQuery", func(t *testing.T) {
		err := es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-1", "inst-1", "org", "org-1", "org.added", 1),
			newEvent("ev-2", "inst-1", "org", "org-1", "org.changed", 2),
		})
		if err != nil {
			t.Fatalf("failed to append events: %v", err)
		}

		events, err := es.Query(ctx, &storelib.SearchFilter{
			InstanceID:     "inst-1",
			AggregateTypes: []string{"org"},
			AggregateIDs:   []string{"org-1"},
		})
		if err != nil {
			t.Fatalf("failed to query events: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].EventType != "org.added" || events[1].EventType != "org.changed" {
			t.Errorf("events out of order: %s, %s", events[0].EventType, events[1].EventType)
		}
		if events[0].Position >= events[1].Position {
			t.Errorf("positions not increasing: %d, %d", events[0].Position, events[1].Position)
		}
		if events[0].Sequence != 1 || events[1].Sequence != 2 {
			t.Errorf("sequences not contiguous: %d, %d", events[0].Sequence, events[1].Sequence)
		}
	})

	t.Run("ConcurrencyConflict", func(t *testing.T) {
		err := es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-10", "inst-1", "user", "user-1", "user.human.added", 1),
		})
		if err != nil {
			t.Fatalf("failed to append first event: %v", err)
		}

		// Same expected sequence again must conflict.
		err = es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-11", "inst-1", "user", "user-1", "user.deactivated", 1),
		})
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Errorf("expected concurrency conflict, got %v", err)
		}

		// Losing writer retries with the refreshed sequence and succeeds.
		err = es.Append(ctx, 1, []*domain.Event{
			newEvent("ev-12", "inst-1", "user", "user-1", "user.deactivated", 2),
		})
		if err != nil {
			t.Errorf("retry with correct sequence failed: %v", err)
		}
	})

	t.Run("UniqueConstraints", func(t *testing.T) {
		claim := domain.NewUniqueClaim("username", "inst-1", "alice")

		err := es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-20", "inst-1", "user", "user-20", "user.human.added", 1, claim),
		})
		if err != nil {
			t.Fatalf("failed to claim username: %v", err)
		}

		// Second aggregate claiming the same value is rejected.
		err = es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-21", "inst-1", "user", "user-21", "user.human.added", 1, claim),
		})
		if !errors.Is(err, domain.ErrUniqueConstraintViolation) {
			t.Fatalf("expected unique constraint violation, got %v", err)
		}

		// Same value in another instance is free.
		err = es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-22", "inst-2", "user", "user-22", "user.human.added", 1,
				domain.NewUniqueClaim("username", "inst-2", "alice")),
		})
		if err != nil {
			t.Fatalf("claim in second instance failed: %v", err)
		}

		// Release frees the value for a new claim.
		err = es.Append(ctx, 1, []*domain.Event{
			newEvent("ev-23", "inst-1", "user", "user-20", "user.removed", 2,
				domain.NewUniqueRelease("username", "inst-1", "alice")),
		})
		if err != nil {
			t.Fatalf("failed to release username: %v", err)
		}
		// user-21 has no committed events: its earlier rejected claim rolled
		// back, so the re-claim starts the stream at sequence 1.
		err = es.Append(ctx, 0, []*domain.Event{
			newEvent("ev-24", "inst-1", "user", "user-21", "user.username.changed", 1, claim),
		})
		if err != nil {
			t.Errorf("re-claim after release failed: %v", err)
		}

		owner, err := es.ConstraintOwner(ctx, "inst-1", "username", "alice")
		if err != nil {
			t.Fatalf("failed to read constraint owner: %v", err)
		}
		if owner != "user-21" {
			t.Errorf("expected owner user-21, got %q", owner)
		}
	})

	t.Run("InstanceScoping", func(t *testing.T) {
		events, err := es.Query(ctx, &storelib.SearchFilter{InstanceID: "inst-2"})
		if err != nil {
			t.Fatalf("failed to query instance: %v", err)
		}
		for _, event := range events {
			if event.InstanceID != "inst-2" {
				t.Errorf("cross-instance leak: %s", event.ID)
			}
		}

		instances, err := es.DistinctInstanceIDs(ctx)
		if err != nil {
			t.Fatalf("failed to list instances: %v", err)
		}
		if len(instances) != 2 {
			t.Errorf("expected 2 instances, got %v", instances)
		}
	})

	t.Run("LatestPositionAndEvent", func(t *testing.T) {
		position, err := es.LatestPosition(ctx, "inst-1")
		if err != nil {
			t.Fatalf("failed to read latest position: %v", err)
		}
		if position == 0 {
			t.Error("expected non-zero latest position")
		}

		latest, err := es.LatestEvent(ctx, "inst-1", domain.AggregateID{Type: "user", ID: "user-1"})
		if err != nil {
			t.Fatalf("failed to read latest event: %v", err)
		}
		if latest.EventType != "user.deactivated" {
			t.Errorf("expected latest event user.deactivated, got %s", latest.EventType)
		}

		_, err = es.LatestEvent(ctx, "inst-1", domain.AggregateID{Type: "user", ID: "missing"})
		if !errors.Is(err, domain.ErrAggregateNotFound) {
			t.Errorf("expected aggregate not found, got %v", err)
		}
	})

	t.Run("QueryAfterPosition", func(t *testing.T) {
		all, err := es.Query(ctx, &storelib.SearchFilter{InstanceID: "inst-1"})
		if err != nil {
			t.Fatalf("failed to query all events: %v", err)
		}
		if len(all) < 2 {
			t.Fatalf("expected at least 2 events, got %d", len(all))
		}

		after, err := es.Query(ctx, &storelib.SearchFilter{
			InstanceID:    "inst-1",
			AfterPosition: all[0].Position,
		})
		if err != nil {
			t.Fatalf("failed to query after position: %v", err)
		}
		if len(after) != len(all)-1 {
			t.Errorf("expected %d events after position, got %d", len(all)-1, len(after))
		}
	})
}

func TestRepository(t *testing.T) {
	ctx := context.Background()

	es, err := sqlite.NewEventStore(
		sqlite.WithMemoryDatabase(),
		sqlite.WithWALMode(false),
	)
	if err != nil {
		t.Fatalf("failed to create event store: %v", err)
	}
	defer es.Close()

	repo := storelib.NewRepository(es, domain.OrgAggregateType,
		func(id, instanceID string) *domain.Org { return domain.NewOrg(id, instanceID) },
		func(org *domain.Org, event *domain.Event) error { return org.Reduce(event) },
	)

	t.Run("SaveAndLoad", func(t *testing.T) {
		org := domain.NewOrg("org-100", "inst-1")
		if err := org.Add("ev-100", "tester", "ACME"); err != nil {
			t.Fatalf("failed to add org: %v", err)
		}
		if err := repo.Save(ctx, org); err != nil {
			t.Fatalf("failed to save org: %v", err)
		}
		if len(org.UncommittedEvents()) != 0 {
			t.Error("uncommitted events not cleared after save")
		}

		loaded, err := repo.Load(ctx, "inst-1", "org-100")
		if err != nil {
			t.Fatalf("failed to load org: %v", err)
		}
		if loaded.Name != "ACME" {
			t.Errorf("expected name ACME, got %q", loaded.Name)
		}
		if loaded.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", loaded.Sequence())
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := repo.Load(ctx, "inst-1", "missing")
		if !errors.Is(err, domain.ErrAggregateNotFound) {
			t.Errorf("expected aggregate not found, got %v", err)
		}
	})

	t.Run("RetryOnConflict", func(t *testing.T) {
		err := repo.RetryOnConflict(ctx, "inst-1", "org-100", 3, func(org *domain.Org) error {
			return org.Deactivate("ev-101", "tester")
		})
		if err != nil {
			t.Fatalf("retry on conflict failed: %v", err)
		}

		loaded, err := repo.Load(ctx, "inst-1", "org-100")
		if err != nil {
			t.Fatalf("failed to reload org: %v", err)
		}
		if loaded.State != domain.OrgStateInactive {
			t.Errorf("expected inactive org, got %v", loaded.State)
		}
	})
}

func TestQueryByEditorAndCreationWindow(t *testing.T) {
	ctx := context.Background()

	es, err := sqlite.NewEventStore(
		sqlite.WithMemoryDatabase(),
		sqlite.WithWALMode(false),
	)
	if err != nil {
		t.Fatalf("failed to create event store: %v", err)
	}
	defer es.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(id string, sequence int64, editor string, created time.Time) *domain.Event {
		event := newEvent(id, "inst-1", "org", "org-9", "org.changed", sequence)
		event.Editor = editor
		event.CreatedAt = created
		return event
	}

	err = es.Append(ctx, 0, []*domain.Event{
		at("ev-40", 1, "alice", base),
		at("ev-41", 2, "bob", base.Add(time.Minute)),
		at("ev-42", 3, "alice", base.Add(2*time.Minute)),
	})
	if err != nil {
		t.Fatalf("failed to append events: %v", err)
	}

	events, err := es.Query(ctx, &storelib.SearchFilter{
		InstanceID: "inst-1",
		Editor:     "alice",
	})
	if err != nil {
		t.Fatalf("failed to query by editor: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events by alice, got %d", len(events))
	}
	for _, event := range events {
		if event.Editor != "alice" {
			t.Errorf("editor filter leaked event %s by %q", event.ID, event.Editor)
		}
	}

	events, err = es.Query(ctx, &storelib.SearchFilter{
		InstanceID:    "inst-1",
		CreatedAfter:  base,
		CreatedBefore: base.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("failed to query creation window: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-41" {
		t.Fatalf("expected only ev-41 inside the window, got %v", events)
	}

	count, err := es.Count(ctx, &storelib.SearchFilter{
		InstanceID:   "inst-1",
		Editor:       "alice",
		CreatedAfter: base,
	})
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 event by alice after base, got %d", count)
	}
}
