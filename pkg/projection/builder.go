package projection

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

// HandlerFunc folds one event into a read model inside the engine's
// transaction.
type HandlerFunc func(ctx context.Context, tx *sql.Tx, event *domain.Event) error

// Builder assembles a projection from per-event-type handlers.
//
//	p := projection.NewBuilder("orgs").
//	    On(domain.OrgAddedType, handleOrgAdded).
//	    On(domain.OrgChangedType, handleOrgChanged).
//	    OnReset(resetOrgs).
//	    Build()
type Builder struct {
	name      string
	handlers  map[string]HandlerFunc
	resetFunc func(context.Context, *sql.Tx) error
}

// NewBuilder creates a builder for a named projection.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		handlers: make(map[string]HandlerFunc),
	}
}

// On registers a handler for one event type.
func (b *Builder) On(eventType string, handler HandlerFunc) *Builder {
	b.handlers[eventType] = handler
	return b
}

// OnReset registers the function that drops the read model for rebuilds.
func (b *Builder) OnReset(resetFunc func(context.Context, *sql.Tx) error) *Builder {
	b.resetFunc = resetFunc
	return b
}

// Build returns the projection.
func (b *Builder) Build() store.Projection {
	eventTypes := make([]string, 0, len(b.handlers))
	for eventType := range b.handlers {
		eventTypes = append(eventTypes, eventType)
	}
	return &handlerProjection{
		name:       b.name,
		eventTypes: eventTypes,
		handlers:   b.handlers,
		resetFunc:  b.resetFunc,
	}
}

type handlerProjection struct {
	name       string
	eventTypes []string
	handlers   map[string]HandlerFunc
	resetFunc  func(context.Context, *sql.Tx) error
}

func (p *handlerProjection) Name() string { return p.name }

func (p *handlerProjection) EventTypes() []string { return p.eventTypes }

func (p *handlerProjection) Handle(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	handler, ok := p.handlers[event.EventType]
	if !ok {
		return nil
	}
	return handler(ctx, tx, event)
}

func (p *handlerProjection) Reset(ctx context.Context, tx *sql.Tx) error {
	if p.resetFunc == nil {
		return nil
	}
	return p.resetFunc(ctx, tx)
}
