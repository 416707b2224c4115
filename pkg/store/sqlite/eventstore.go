// Package sqlite implements the event store and read-model persistence on
// SQLite via the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/identra/identra/pkg/domain"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// EventStore is the SQLite-backed store.EventStore. Writers serialize on an
// internal mutex; readers go through the connection pool.
type EventStore struct {
	db *sql.DB
	mu sync.Mutex
}

type eventStoreConfig struct {
	// dsn is the data source name (file path or ":memory:" for in-memory)
	dsn string

	// maxOpenConns sets the maximum number of open connections
	maxOpenConns int

	// maxIdleConns sets the maximum number of idle connections
	maxIdleConns int

	// walMode enables write-ahead logging for better concurrency
	walMode bool

	// autoMigrate automatically runs pending migrations on startup
	autoMigrate bool
}

func defaultEventStoreConfig() eventStoreConfig {
	return eventStoreConfig{
		dsn:          "identra.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// EventStoreOption configures an EventStore.
type EventStoreOption func(*eventStoreConfig)

// WithDSN sets the data source name (file path or ":memory:" for in-memory).
func WithDSN(dsn string) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase sets the database to an in-memory database.
func WithMemoryDatabase() EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode enables write-ahead logging for better concurrency.
// Not available for :memory: databases.
func WithWALMode(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.walMode = enabled
	}
}

// WithAutoMigrate enables automatic migration on startup.
func WithAutoMigrate(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.autoMigrate = enabled
	}
}

// NewEventStore opens a SQLite event store.
//
//	// In-memory database for testing
//	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
//
//	// Custom configuration
//	es, err := sqlite.NewEventStore(
//	    sqlite.WithDSN("/var/lib/identra/identra.db"),
//	    sqlite.WithMaxOpenConns(50),
//	)
func NewEventStore(opts ...EventStoreOption) (*EventStore, error) {
	config := defaultEventStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, domain.Unavailable(domain.CodeUnavailable, "open database").WithParent(err)
	}

	// :memory: databases exist per connection, so force a single one.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &EventStore{db: db}

	if config.walMode && config.dsn != ":memory:" {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
			PRAGMA foreign_keys = ON;
		`); err != nil {
			db.Close()
			return nil, domain.Unavailable(domain.CodeUnavailable, "set WAL mode").WithParent(err)
		}
	}

	if config.autoMigrate {
		if err := RunMigrations(db); err != nil {
			db.Close()
			return nil, domain.Internal("STORE-Migrate", "run migrations").WithParent(err)
		}
	}

	return store, nil
}

// DB exposes the underlying handle so projections and queries share the
// same database and transactions.
func (s *EventStore) DB() *sql.DB { return s.db }

// Append appends one aggregate's events atomically with constraint claims.
func (s *EventStore) Append(ctx context.Context, expectedSequence int64, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	first := events[0]
	aggregate := domain.AggregateID{Type: first.AggregateType, ID: first.AggregateID}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unavailable(domain.CodeUnavailable, "begin transaction").WithParent(err)
	}
	defer tx.Rollback()

	current, err := currentSequenceTx(ctx, tx, first.InstanceID, aggregate)
	if err != nil {
		return err
	}
	if current != expectedSequence {
		return domain.ConcurrencyConflict(first.AggregateType, first.AggregateID, expectedSequence)
	}

	for _, event := range events {
		if err := applyConstraintsTx(ctx, tx, event); err != nil {
			return err
		}
	}

	for _, event := range events {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (
				event_id, instance_id, resource_owner, aggregate_type,
				aggregate_id, sequence, event_type, editor, payload, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.InstanceID, event.ResourceOwner, event.AggregateType,
			event.AggregateID, event.Sequence, event.EventType, event.Editor,
			event.Payload, event.CreatedAt.UnixNano(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ConcurrencyConflict(event.AggregateType, event.AggregateID, expectedSequence)
			}
			return domain.Internal("STORE-Push", "insert event").WithParent(err)
		}
		position, err := res.LastInsertId()
		if err != nil {
			return domain.Internal("STORE-Push", "read event position").WithParent(err)
		}
		event.Position = position
	}

	if err := tx.Commit(); err != nil {
		return domain.Internal("STORE-Push", "commit events").WithParent(err)
	}
	return nil
}

func applyConstraintsTx(ctx context.Context, tx *sql.Tx, event *domain.Event) error {
	for _, constraint := range event.UniqueConstraints {
		switch constraint.Operation {
		case domain.ConstraintClaim:
			var ownerID string
			err := tx.QueryRowContext(ctx, `
				SELECT aggregate_id FROM unique_constraints
				WHERE instance_id = ? AND index_name = ? AND value = ?`,
				constraint.InstanceID, constraint.IndexName, constraint.Value,
			).Scan(&ownerID)
			switch {
			case err == nil && ownerID != event.AggregateID:
				return &domain.UniqueConstraintError{
					IndexName: constraint.IndexName,
					Value:     constraint.Value,
					OwnerID:   ownerID,
				}
			case err == nil:
				continue // re-claim by the same aggregate
			case err != sql.ErrNoRows:
				return domain.Internal("STORE-Constraint", "check uniqueness").WithParent(err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO unique_constraints (instance_id, index_name, value, aggregate_id, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				constraint.InstanceID, constraint.IndexName, constraint.Value,
				event.AggregateID, time.Now().Unix(),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return &domain.UniqueConstraintError{
						IndexName: constraint.IndexName,
						Value:     constraint.Value,
					}
				}
				return domain.Internal("STORE-Constraint", "claim value").WithParent(err)
			}

		case domain.ConstraintRelease:
			_, err := tx.ExecContext(ctx, `
				DELETE FROM unique_constraints
				WHERE instance_id = ? AND index_name = ? AND value = ? AND aggregate_id = ?`,
				constraint.InstanceID, constraint.IndexName, constraint.Value, event.AggregateID,
			)
			if err != nil {
				return domain.Internal("STORE-Constraint", "release value").WithParent(err)
			}
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func currentSequenceTx(ctx context.Context, tx *sql.Tx, instanceID string, aggregate domain.AggregateID) (int64, error) {
	var sequence int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM events
		WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?`,
		instanceID, aggregate.Type, aggregate.ID,
	).Scan(&sequence)
	if err != nil {
		return 0, domain.Internal("STORE-Query", "read aggregate sequence").WithParent(err)
	}
	return sequence, nil
}
