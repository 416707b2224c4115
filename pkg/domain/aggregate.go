package domain

import "fmt"

// Aggregate defines the interface that all aggregates implement.
// State is defined entirely by the ordered event stream; the current
// sequence equals the count of applied events.
type Aggregate interface {
	// ID returns the unique identifier of the aggregate.
	ID() string

	// Type returns the type name of the aggregate.
	Type() string

	// Sequence returns the sequence of the last applied event.
	Sequence() int64

	// InstanceID returns the tenancy root the aggregate belongs to.
	InstanceID() string

	// ResourceOwner returns the owning organization.
	ResourceOwner() string

	// UncommittedEvents returns events applied but not yet persisted.
	UncommittedEvents() []*Event

	// ClearUncommittedEvents clears the uncommitted events after persistence.
	ClearUncommittedEvents()
}

// AggregateRoot provides base functionality for all aggregates.
// Embed it in aggregate implementations.
type AggregateRoot struct {
	id            string
	aggregateType string
	instanceID    string
	resourceOwner string
	sequence      int64
	uncommitted   []*Event
	reduce        func(*Event) error
}

// NewAggregateRoot creates a new aggregate root.
func NewAggregateRoot(aggregateType, id, instanceID, resourceOwner string) AggregateRoot {
	return AggregateRoot{
		id:            id,
		aggregateType: aggregateType,
		instanceID:    instanceID,
		resourceOwner: resourceOwner,
	}
}

func (a *AggregateRoot) ID() string            { return a.id }
func (a *AggregateRoot) Type() string          { return a.aggregateType }
func (a *AggregateRoot) Sequence() int64       { return a.sequence }
func (a *AggregateRoot) InstanceID() string    { return a.instanceID }
func (a *AggregateRoot) ResourceOwner() string { return a.resourceOwner }

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateRoot) UncommittedEvents() []*Event {
	return a.uncommitted
}

// ClearUncommittedEvents clears the uncommitted events list.
func (a *AggregateRoot) ClearUncommittedEvents() {
	a.uncommitted = nil
}

// SetOwner records instance and resource owner when the first event of a
// loaded stream is applied.
func (a *AggregateRoot) SetOwner(instanceID, resourceOwner string) {
	a.instanceID = instanceID
	a.resourceOwner = resourceOwner
}

// Bind registers the aggregate's reducer. Constructors call it so that
// Emit folds each new event into state immediately and later commands in
// the same session see the effects of earlier ones.
func (a *AggregateRoot) Bind(reduce func(*Event) error) {
	a.reduce = reduce
}

// Emit appends a new event to the uncommitted list, assigning the next
// sequence, and folds it into aggregate state through the bound reducer.
// The payload is JSON-serialized; a serialization failure is a
// programming error and surfaces as ErrInternal.
func (a *AggregateRoot) Emit(eventType, eventID, editor string, payload any, constraints ...UniqueConstraint) error {
	data, err := MarshalPayload(payload)
	if err != nil {
		return Internal("EVENT-Marshal", fmt.Sprintf("marshal payload for %s: %v", eventType, err))
	}

	a.sequence++
	event := &Event{
		ID:                eventID,
		AggregateType:     a.aggregateType,
		AggregateID:       a.id,
		Sequence:          a.sequence,
		EventType:         eventType,
		CreatedAt:         Now(),
		Editor:            editor,
		ResourceOwner:     a.resourceOwner,
		InstanceID:        a.instanceID,
		Payload:           data,
		UniqueConstraints: constraints,
	}
	a.uncommitted = append(a.uncommitted, event)
	if a.reduce == nil {
		return nil
	}
	// Advance inside the reducer is a no-op here: the sequence is already
	// assigned above.
	return a.reduce(event)
}

// Advance records an applied historical event. Reducers call this after
// folding an event into state so that Sequence matches the event count.
func (a *AggregateRoot) Advance(event *Event) {
	if event.Sequence <= a.sequence {
		return
	}
	a.sequence = event.Sequence
	if a.instanceID == "" {
		a.instanceID = event.InstanceID
	}
	if event.ResourceOwner != "" {
		a.resourceOwner = event.ResourceOwner
	}
}
