package store

import (
	"context"
	"time"

	"github.com/identra/identra/pkg/domain"
)

// SearchFilter narrows an event store query. InstanceID is mandatory on
// tenant-scoped queries; all other fields are optional and combine with AND.
// CreatedAfter and CreatedBefore bound the event creation time; a zero time
// leaves the bound open.
type SearchFilter struct {
	InstanceID     string
	AggregateTypes []string
	AggregateIDs   []string
	EventTypes     []string
	ResourceOwner  string
	Editor         string
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	AfterPosition  int64
	AfterSequence  int64
	Limit          int
	Descending     bool
}

// EventStore persists and retrieves immutable domain events. The log is
// totally ordered by a store-assigned global position; within an aggregate
// events carry a contiguous 1-based sequence.
type EventStore interface {
	// Append appends events to one aggregate's stream atomically, claiming
	// and releasing unique constraints in the same transaction.
	// Returns domain.ErrConcurrencyConflict when expectedSequence does not
	// match the aggregate's current sequence, and a
	// *domain.UniqueConstraintError when a claim would collide.
	Append(ctx context.Context, expectedSequence int64, events []*domain.Event) error

	// Query returns events matching the filter ordered by global position.
	Query(ctx context.Context, filter *SearchFilter) ([]*domain.Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter *SearchFilter) (int64, error)

	// LatestPosition returns the highest global position for an instance,
	// or 0 when the instance has no events.
	LatestPosition(ctx context.Context, instanceID string) (int64, error)

	// LatestEvent returns the newest event of one aggregate, or
	// domain.ErrAggregateNotFound when the stream is empty.
	LatestEvent(ctx context.Context, instanceID string, aggregate domain.AggregateID) (*domain.Event, error)

	// CurrentSequence returns the aggregate's sequence, 0 when absent.
	CurrentSequence(ctx context.Context, instanceID string, aggregate domain.AggregateID) (int64, error)

	// ConstraintOwner returns the aggregate ID holding a unique value
	// within an instance, or "" when the value is unclaimed.
	ConstraintOwner(ctx context.Context, instanceID, indexName, value string) (string, error)

	// DistinctInstanceIDs lists all instance IDs present in the log.
	DistinctInstanceIDs(ctx context.Context) ([]string, error)

	// Health verifies the store can serve queries.
	Health(ctx context.Context) error

	// Close closes the event store and releases resources.
	Close() error
}
