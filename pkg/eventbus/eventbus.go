// Package eventbus fans appended events out over NATS JetStream so
// projection loops and policy caches react without waiting for the next
// poll interval.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/domain"
)

// Config holds the NATS connection and stream settings.
type Config struct {
	URL            string
	StreamName     string
	StreamSubjects []string
	MaxAge         time.Duration
	MaxBytes       int64
}

// DefaultConfig returns the stream settings used in production.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "IDENTRA_EVENTS",
		StreamSubjects: []string{"events.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024,
	}
}

// Bus publishes domain events to JetStream and dispatches them to
// subscribers. Events are JSON on the wire, deduplicated by event ID.
type Bus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
	logger     zerolog.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Connect dials NATS and ensures the event stream exists.
func Connect(config Config, logger zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, domain.Unavailable("BUS-Connect", "connect to nats").WithParent(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, domain.Unavailable("BUS-JetStream", "create jetstream context").WithParent(err)
	}

	bus := &Bus{
		nc:         nc,
		js:         js,
		streamName: config.StreamName,
		logger:     logger.With().Str("component", "eventbus").Logger(),
		subs:       make(map[string]*nats.Subscription),
	}
	if err := bus.ensureStream(config); err != nil {
		nc.Close()
		return nil, err
	}
	return bus, nil
}

func (b *Bus) ensureStream(config Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.InterestPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	stream, err := b.js.StreamInfo(config.StreamName)
	if err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return domain.Unavailable("BUS-Stream", "create event stream").WithParent(err)
		}
		return nil
	}
	if stream.Config.MaxAge != config.MaxAge || stream.Config.MaxBytes != config.MaxBytes {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return domain.Unavailable("BUS-Stream", "update event stream").WithParent(err)
		}
	}
	return nil
}

// Subject returns the stream subject of one event.
func Subject(event *domain.Event) string {
	return fmt.Sprintf("events.%s.%s", event.AggregateType, event.EventType)
}

// Publish sends events to the stream. The event ID doubles as the
// message ID so redelivered batches deduplicate server-side.
func (b *Bus) Publish(events []*domain.Event) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return domain.Internal("BUS-Encode", "encode event").WithParent(err)
		}
		if _, err := b.js.Publish(Subject(event), payload, nats.MsgId(event.ID)); err != nil {
			return domain.Unavailable("BUS-Publish", "publish event").WithParent(err)
		}
	}
	return nil
}

// Handler consumes one decoded event. Returning an error nacks the
// message for redelivery.
type Handler func(event *domain.Event) error

// Subscribe registers a durable consumer on the subject. Use "events.>"
// for everything or "events.<aggregate>.>" for one aggregate type.
func (b *Bus) Subscribe(name, subject string, handler Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, err := b.js.QueueSubscribe(subject, name, func(msg *nats.Msg) {
		event := &domain.Event{}
		if err := json.Unmarshal(msg.Data, event); err != nil {
			b.logger.Error().Err(err).Str("subject", msg.Subject).Msg("undecodable event dropped")
			_ = msg.Term()
			return
		}
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event_type", event.EventType).Msg("event handler failed")
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.Durable(name), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, domain.Unavailable("BUS-Subscribe", "subscribe").WithParent(err)
	}

	b.subs[name] = sub
	return &Subscription{bus: b, sub: sub, name: name}, nil
}

// Close drains all subscriptions and the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.nc.Close()
	return nil
}

// Subscription is a handle on one durable consumer.
type Subscription struct {
	bus  *Bus
	sub  *nats.Subscription
	name string
}

// Unsubscribe removes the consumer.
func (s *Subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.name)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}
