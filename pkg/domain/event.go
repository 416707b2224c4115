package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// Event is an immutable fact recorded in the event store.
//
// Position is assigned by the store on append and is strictly increasing
// across the whole store. Sequence is 1-based and contiguous within the
// owning aggregate. Events are never updated or deleted.
type Event struct {
	// ID is a sortable unique identifier assigned by the producer.
	ID string

	// Position is the global, store-assigned ordering key. Zero until
	// the event has been appended.
	Position int64

	// AggregateType is the type name of the owning aggregate (e.g. "org").
	AggregateType string

	// AggregateID identifies the owning aggregate within its type.
	AggregateID string

	// Sequence is the 1-based position of this event within its aggregate.
	Sequence int64

	// EventType is the fully qualified event name (e.g. "org.added").
	EventType string

	// CreatedAt is when the event was produced. The store persists its own
	// timestamp on append.
	CreatedAt time.Time

	// Editor identifies the principal that caused this event.
	Editor string

	// ResourceOwner is the organization that owns the aggregate.
	ResourceOwner string

	// InstanceID is the tenancy root. Every event carries one.
	InstanceID string

	// Payload is the JSON-serialized event payload.
	Payload []byte

	// UniqueConstraints are uniqueness claims or releases validated
	// atomically with persistence (e.g. usernames, verified domains).
	UniqueConstraints []UniqueConstraint
}

// UnmarshalPayload decodes the event payload into target. Payloads are
// dynamically typed per event type; projections validate on read at their
// boundary and skip payloads they do not understand.
func (e *Event) UnmarshalPayload(target any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, target)
}

// MarshalPayload encodes a payload for embedding into an event.
func MarshalPayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

// AggregateID identifies an aggregate by (type, id). An aggregate does not
// exist until its first event; deletion is a terminal event, not a row
// removal.
type AggregateID struct {
	Type string
	ID   string
}

// UniqueConstraint represents a uniqueness claim or release on a value,
// scoped to an instance.
type UniqueConstraint struct {
	// IndexName identifies the constraint class (e.g. "username", "org_domain").
	IndexName string

	// InstanceID scopes the claim to a tenant.
	InstanceID string

	// Value is the unique value being claimed or released.
	Value string

	// Operation is either claim or release.
	Operation ConstraintOperation
}

// ConstraintOperation defines operations on unique constraints.
type ConstraintOperation string

const (
	ConstraintClaim   ConstraintOperation = "claim"
	ConstraintRelease ConstraintOperation = "release"
)

// NewUniqueClaim claims value under indexName for the given instance.
func NewUniqueClaim(indexName, instanceID, value string) UniqueConstraint {
	return UniqueConstraint{IndexName: indexName, InstanceID: instanceID, Value: value, Operation: ConstraintClaim}
}

// NewUniqueRelease releases a previously claimed value.
func NewUniqueRelease(indexName, instanceID, value string) UniqueConstraint {
	return UniqueConstraint{IndexName: indexName, InstanceID: instanceID, Value: value, Operation: ConstraintRelease}
}

// Now returns the current time in UTC. All store timestamps use UTC.
func Now() time.Time {
	return time.Now().UTC()
}
