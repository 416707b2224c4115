package projection

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

// allPartition is the single bookmark partition. The SQLite log is totally
// ordered, so one cursor per projection is sufficient; the column exists so
// a partitioned store can shard cursors without a schema change.
const allPartition = "all"

// Bookmarks persists projection cursors, operational states and failed
// events on the shared database.
type Bookmarks struct {
	db *sql.DB
}

// NewBookmarks creates the bookmark store over the shared handle.
func NewBookmarks(db *sql.DB) *Bookmarks {
	return &Bookmarks{db: db}
}

// Load returns the projection's bookmark, a zero bookmark when absent.
func (b *Bookmarks) Load(ctx context.Context, projectionName string) (*store.Bookmark, error) {
	bookmark := &store.Bookmark{ProjectionName: projectionName}
	var updatedAt int64
	err := b.db.QueryRowContext(ctx, `
		SELECT position, last_event_id, updated_at FROM projection_bookmarks
		WHERE projection_name = ? AND partition_key = ?`,
		projectionName, allPartition,
	).Scan(&bookmark.Position, &bookmark.LastEventID, &updatedAt)
	if err == sql.ErrNoRows {
		return bookmark, nil
	}
	if err != nil {
		return nil, domain.Internal("PROJECTION-Bookmark", "load bookmark").WithParent(err)
	}
	bookmark.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return bookmark, nil
}

// SaveInTx advances the bookmark inside the projection's transaction so the
// read model and cursor move together.
func (b *Bookmarks) SaveInTx(ctx context.Context, tx *sql.Tx, bookmark *store.Bookmark) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projection_bookmarks (projection_name, partition_key, position, last_event_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (projection_name, partition_key) DO UPDATE SET
			position = excluded.position,
			last_event_id = excluded.last_event_id,
			updated_at = excluded.updated_at`,
		bookmark.ProjectionName, allPartition, bookmark.Position,
		bookmark.LastEventID, time.Now().Unix(),
	)
	if err != nil {
		return domain.Internal("PROJECTION-Bookmark", "save bookmark").WithParent(err)
	}
	return nil
}

// DeleteInTx removes the bookmark during a rebuild reset.
func (b *Bookmarks) DeleteInTx(ctx context.Context, tx *sql.Tx, projectionName string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM projection_bookmarks WHERE projection_name = ?`, projectionName)
	if err != nil {
		return domain.Internal("PROJECTION-Bookmark", "delete bookmark").WithParent(err)
	}
	return nil
}

// SaveState upserts the projection's operational state.
func (b *Bookmarks) SaveState(ctx context.Context, state *store.ProjectionState) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO projection_states (projection_name, status, message, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (projection_name) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			updated_at = excluded.updated_at`,
		state.ProjectionName, string(state.Status), state.Message, time.Now().Unix(),
	)
	if err != nil {
		return domain.Internal("PROJECTION-State", "save state").WithParent(err)
	}
	return nil
}

// LoadState returns the projection's state; READY when never recorded.
func (b *Bookmarks) LoadState(ctx context.Context, projectionName string) (*store.ProjectionState, error) {
	state := &store.ProjectionState{ProjectionName: projectionName}
	var status string
	var updatedAt int64
	err := b.db.QueryRowContext(ctx, `
		SELECT status, message, updated_at FROM projection_states
		WHERE projection_name = ?`, projectionName,
	).Scan(&status, &state.Message, &updatedAt)
	if err == sql.ErrNoRows {
		state.Status = store.ProjectionStatusReady
		return state, nil
	}
	if err != nil {
		return nil, domain.Internal("PROJECTION-State", "load state").WithParent(err)
	}
	state.Status = store.ProjectionStatus(status)
	state.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return state, nil
}

// RecordFailure upserts a failed event, incrementing its failure count, and
// returns the new count.
func (b *Bookmarks) RecordFailure(ctx context.Context, projectionName string, event *domain.Event, cause error) (int, error) {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO failed_events (projection_name, event_id, position, failure_count, last_error, failed_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (projection_name, event_id) DO UPDATE SET
			failure_count = failure_count + 1,
			last_error = excluded.last_error,
			failed_at = excluded.failed_at`,
		projectionName, event.ID, event.Position, cause.Error(), time.Now().Unix(),
	)
	if err != nil {
		return 0, domain.Internal("PROJECTION-Failed", "record failed event").WithParent(err)
	}

	var count int
	err = b.db.QueryRowContext(ctx, `
		SELECT failure_count FROM failed_events
		WHERE projection_name = ? AND event_id = ?`,
		projectionName, event.ID,
	).Scan(&count)
	if err != nil {
		return 0, domain.Internal("PROJECTION-Failed", "read failure count").WithParent(err)
	}
	return count, nil
}

// FailedEvents lists the failed events of one projection ordered by position.
func (b *Bookmarks) FailedEvents(ctx context.Context, projectionName string) ([]*store.FailedEvent, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT event_id, position, failure_count, last_error, failed_at
		FROM failed_events WHERE projection_name = ? ORDER BY position`,
		projectionName,
	)
	if err != nil {
		return nil, domain.Internal("PROJECTION-Failed", "list failed events").WithParent(err)
	}
	defer rows.Close()

	var failed []*store.FailedEvent
	for rows.Next() {
		fe := &store.FailedEvent{ProjectionName: projectionName}
		var failedAt int64
		if err := rows.Scan(&fe.EventID, &fe.Position, &fe.FailureCount, &fe.LastError, &failedAt); err != nil {
			return nil, domain.Internal("PROJECTION-Failed", "scan failed event").WithParent(err)
		}
		fe.FailedAt = time.Unix(failedAt, 0).UTC()
		failed = append(failed, fe)
	}
	return failed, rows.Err()
}

// ResolveFailureInTx removes a failed-event row after a successful retry.
func (b *Bookmarks) ResolveFailureInTx(ctx context.Context, tx *sql.Tx, projectionName, eventID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM failed_events WHERE projection_name = ? AND event_id = ?`,
		projectionName, eventID,
	)
	if err != nil {
		return domain.Internal("PROJECTION-Failed", "resolve failed event").WithParent(err)
	}
	return nil
}

// ClearFailuresInTx drops all failure records during a rebuild reset.
func (b *Bookmarks) ClearFailuresInTx(ctx context.Context, tx *sql.Tx, projectionName string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM failed_events WHERE projection_name = ?`, projectionName)
	if err != nil {
		return domain.Internal("PROJECTION-Failed", "clear failed events").WithParent(err)
	}
	return nil
}
