package eventbus

import (
	"context"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/policy"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/store"
)

// PublishingStore decorates an event store so successfully appended
// events are announced on the bus. Publishing is best effort: the
// append has already committed, and projections catch up by polling
// even when a notification is lost.
type PublishingStore struct {
	store.EventStore
	bus *Bus
}

// NewPublishingStore wraps the inner store.
func NewPublishingStore(inner store.EventStore, bus *Bus) *PublishingStore {
	return &PublishingStore{EventStore: inner, bus: bus}
}

func (s *PublishingStore) Append(ctx context.Context, expectedSequence int64, events []*domain.Event) error {
	if err := s.EventStore.Append(ctx, expectedSequence, events); err != nil {
		return err
	}
	if err := s.bus.Publish(events); err != nil {
		s.bus.logger.Warn().Err(err).Msg("appended events not announced")
	}
	return nil
}

// WakeProjections subscribes to every event: each delivery invalidates
// stale policy cache entries and wakes the projection loops.
func WakeProjections(bus *Bus, engine *projection.Engine, resolver *policy.Resolver) (*Subscription, error) {
	return bus.Subscribe("projection-wake", "events.>", func(event *domain.Event) error {
		resolver.Invalidate(event)
		engine.Trigger()
		return nil
	})
}
