package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/domain"
)

// Repository provides persistence operations for aggregates.
type Repository[T domain.Aggregate] interface {
	// Load replays an aggregate's stream within the instance.
	Load(ctx context.Context, instanceID, id string) (T, error)

	// Save persists an aggregate's uncommitted events with optimistic
	// concurrency control.
	Save(ctx context.Context, aggregate T) error

	// Exists checks if an aggregate has any events.
	Exists(ctx context.Context, instanceID, id string) (bool, error)
}

// BaseRepository is the generic Repository implementation backed by an
// EventStore. factory builds an empty aggregate, applier folds one event
// into it.
type BaseRepository[T domain.Aggregate] struct {
	eventStore    EventStore
	aggregateType string
	factory       func(id, instanceID string) T
	applier       func(aggregate T, event *domain.Event) error
}

// NewRepository creates a repository for one aggregate type.
func NewRepository[T domain.Aggregate](
	eventStore EventStore,
	aggregateType string,
	factory func(id, instanceID string) T,
	applier func(aggregate T, event *domain.Event) error,
) *BaseRepository[T] {
	return &BaseRepository[T]{
		eventStore:    eventStore,
		aggregateType: aggregateType,
		factory:       factory,
		applier:       applier,
	}
}

// Load replays all events of the aggregate in sequence order.
func (r *BaseRepository[T]) Load(ctx context.Context, instanceID, id string) (T, error) {
	var zero T

	events, err := r.eventStore.Query(ctx, &SearchFilter{
		InstanceID:     instanceID,
		AggregateTypes: []string{r.aggregateType},
		AggregateIDs:   []string{id},
	})
	if err != nil {
		return zero, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return zero, domain.ErrAggregateNotFound
	}

	aggregate := r.factory(id, instanceID)
	for _, event := range events {
		if err := r.applier(aggregate, event); err != nil {
			return zero, fmt.Errorf("apply event %s: %w", event.EventType, err)
		}
	}
	return aggregate, nil
}

// LoadOrNew replays the aggregate or returns a fresh one at sequence 0 when
// no events exist. Creation commands use this so the caller does not need a
// prior existence check.
func (r *BaseRepository[T]) LoadOrNew(ctx context.Context, instanceID, id string) (T, error) {
	aggregate, err := r.Load(ctx, instanceID, id)
	if errors.Is(err, domain.ErrAggregateNotFound) {
		return r.factory(id, instanceID), nil
	}
	return aggregate, err
}

// Save persists an aggregate's uncommitted events. The expected sequence is
// the aggregate's sequence before the new events were emitted.
func (r *BaseRepository[T]) Save(ctx context.Context, aggregate T) error {
	uncommitted := aggregate.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	expectedSequence := aggregate.Sequence() - int64(len(uncommitted))
	if err := r.eventStore.Append(ctx, expectedSequence, uncommitted); err != nil {
		return err
	}

	aggregate.ClearUncommittedEvents()
	return nil
}

// Exists checks whether the aggregate has at least one event.
func (r *BaseRepository[T]) Exists(ctx context.Context, instanceID, id string) (bool, error) {
	sequence, err := r.eventStore.CurrentSequence(ctx, instanceID, domain.AggregateID{Type: r.aggregateType, ID: id})
	if err != nil {
		return false, fmt.Errorf("check aggregate existence: %w", err)
	}
	return sequence > 0, nil
}

// RetryOnConflict executes fn with a freshly loaded aggregate, retrying on
// optimistic concurrency conflicts with 10/20/40ms backoff. fn mutates the
// aggregate; the repository saves it afterwards.
func (r *BaseRepository[T]) RetryOnConflict(ctx context.Context, instanceID, id string, maxRetries int, fn func(T) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		aggregate, err := r.LoadOrNew(ctx, instanceID, id)
		if err != nil {
			return err
		}

		if err := fn(aggregate); err != nil {
			return err
		}

		err = r.Save(ctx, aggregate)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		lastErr = err

		backoff := time.Duration(10*(1<<uint(attempt))) * time.Millisecond
		select {
		case <-ctx.Done():
			return domain.DeadlineExceeded("append retry aborted").WithParent(ctx.Err())
		case <-time.After(backoff):
		}
	}
	return lastErr
}
