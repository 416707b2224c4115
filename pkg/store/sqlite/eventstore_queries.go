package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

const eventColumns = `position, event_id, instance_id, resource_owner,
	aggregate_type, aggregate_id, sequence, event_type, editor, payload, created_at`

// Query returns events matching the filter ordered by global position.
func (s *EventStore) Query(ctx context.Context, filter *store.SearchFilter) ([]*domain.Event, error) {
	query, args := buildSearchQuery("SELECT "+eventColumns+" FROM events", filter, true)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal("STORE-Query", "query events").WithParent(err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal("STORE-Query", "iterate events").WithParent(err)
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *EventStore) Count(ctx context.Context, filter *store.SearchFilter) (int64, error) {
	query, args := buildSearchQuery("SELECT COUNT(*) FROM events", filter, false)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, domain.Internal("STORE-Query", "count events").WithParent(err)
	}
	return count, nil
}

// LatestPosition returns the highest position for an instance, 0 when empty.
func (s *EventStore) LatestPosition(ctx context.Context, instanceID string) (int64, error) {
	var position int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM events WHERE instance_id = ?`,
		instanceID,
	).Scan(&position)
	if err != nil {
		return 0, domain.Internal("STORE-Query", "read latest position").WithParent(err)
	}
	return position, nil
}

// LatestEvent returns the newest event of one aggregate.
func (s *EventStore) LatestEvent(ctx context.Context, instanceID string, aggregate domain.AggregateID) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?
		ORDER BY sequence DESC LIMIT 1`,
		instanceID, aggregate.Type, aggregate.ID,
	)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAggregateNotFound
	}
	return event, err
}

// CurrentSequence returns the aggregate's sequence, 0 when absent.
func (s *EventStore) CurrentSequence(ctx context.Context, instanceID string, aggregate domain.AggregateID) (int64, error) {
	var sequence int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM events
		WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?`,
		instanceID, aggregate.Type, aggregate.ID,
	).Scan(&sequence)
	if err != nil {
		return 0, domain.Internal("STORE-Query", "read aggregate sequence").WithParent(err)
	}
	return sequence, nil
}

// ConstraintOwner returns the aggregate holding a claimed value, "" if free.
func (s *EventStore) ConstraintOwner(ctx context.Context, instanceID, indexName, value string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT aggregate_id FROM unique_constraints
		WHERE instance_id = ? AND index_name = ? AND value = ?`,
		instanceID, indexName, value,
	).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", domain.Internal("STORE-Query", "read constraint owner").WithParent(err)
	}
	return ownerID, nil
}

// DistinctInstanceIDs lists all instance IDs present in the log.
func (s *EventStore) DistinctInstanceIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT instance_id FROM events ORDER BY instance_id`)
	if err != nil {
		return nil, domain.Internal("STORE-Query", "list instances").WithParent(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Internal("STORE-Query", "scan instance id").WithParent(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Health verifies the store can serve queries.
func (s *EventStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.Unavailable(domain.CodeUnavailable, "database unreachable").WithParent(err)
	}
	return nil
}

// Close closes the underlying database.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// buildSearchQuery renders the filter into a WHERE clause with positional
// arguments. Conditions combine with AND.
func buildSearchQuery(prefix string, filter *store.SearchFilter, ordered bool) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.InstanceID != "" {
		conds = append(conds, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if len(filter.AggregateTypes) > 0 {
		conds = append(conds, inClause("aggregate_type", len(filter.AggregateTypes)))
		for _, t := range filter.AggregateTypes {
			args = append(args, t)
		}
	}
	if len(filter.AggregateIDs) > 0 {
		conds = append(conds, inClause("aggregate_id", len(filter.AggregateIDs)))
		for _, id := range filter.AggregateIDs {
			args = append(args, id)
		}
	}
	if len(filter.EventTypes) > 0 {
		conds = append(conds, inClause("event_type", len(filter.EventTypes)))
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}
	if filter.ResourceOwner != "" {
		conds = append(conds, "resource_owner = ?")
		args = append(args, filter.ResourceOwner)
	}
	if filter.Editor != "" {
		conds = append(conds, "editor = ?")
		args = append(args, filter.Editor)
	}
	if !filter.CreatedAfter.IsZero() {
		conds = append(conds, "created_at > ?")
		args = append(args, filter.CreatedAfter.UnixNano())
	}
	if !filter.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.CreatedBefore.UnixNano())
	}
	if filter.AfterPosition > 0 {
		conds = append(conds, "position > ?")
		args = append(args, filter.AfterPosition)
	}
	if filter.AfterSequence > 0 {
		conds = append(conds, "sequence > ?")
		args = append(args, filter.AfterSequence)
	}

	var b strings.Builder
	b.WriteString(prefix)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	if ordered {
		if filter.Descending {
			b.WriteString(" ORDER BY position DESC")
		} else {
			b.WriteString(" ORDER BY position ASC")
		}
	}
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	return b.String(), args
}

func inClause(column string, n int) string {
	return column + " IN (?" + strings.Repeat(", ?", n-1) + ")"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		event     domain.Event
		createdAt int64
	)
	err := row.Scan(
		&event.Position, &event.ID, &event.InstanceID, &event.ResourceOwner,
		&event.AggregateType, &event.AggregateID, &event.Sequence,
		&event.EventType, &event.Editor, &event.Payload, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, domain.Internal("STORE-Query", "scan event").WithParent(err)
	}
	event.CreatedAt = time.Unix(0, createdAt).UTC()
	return &event, nil
}
