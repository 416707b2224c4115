package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra/identra/pkg/domain"
)

// Projection builds a read model from events. Handlers run inside the
// engine's transaction so the read model and the bookmark advance together.
type Projection interface {
	// Name returns the unique name of this projection.
	Name() string

	// EventTypes returns the event types the projection subscribes to.
	// The engine skips events outside this set.
	EventTypes() []string

	// Handle folds one event into the read model within tx.
	Handle(ctx context.Context, tx *sql.Tx, event *domain.Event) error

	// Reset drops the read model so it can be rebuilt from position 0.
	Reset(ctx context.Context, tx *sql.Tx) error
}

// Bookmark tracks how far a projection has processed the event log.
type Bookmark struct {
	ProjectionName string
	Position       int64
	LastEventID    string
	UpdatedAt      time.Time
}

// ProjectionStatus is the operational status of a projection.
type ProjectionStatus string

const (
	// ProjectionStatusReady indicates the projection serves queries.
	ProjectionStatusReady ProjectionStatus = "READY"

	// ProjectionStatusRebuilding indicates a rebuild from position 0.
	ProjectionStatusRebuilding ProjectionStatus = "REBUILDING"

	// ProjectionStatusFailed indicates too many handler failures.
	ProjectionStatusFailed ProjectionStatus = "FAILED"

	// ProjectionStatusPaused indicates the projection is not processing.
	ProjectionStatusPaused ProjectionStatus = "PAUSED"
)

// ProjectionState is the persisted operational state of a projection.
type ProjectionState struct {
	ProjectionName string
	Status         ProjectionStatus
	Message        string
	UpdatedAt      time.Time
}

// FailedEvent records an event a projection could not apply. The engine
// skips past it and continues; retry happens out of band.
type FailedEvent struct {
	ProjectionName string
	EventID        string
	Position       int64
	FailureCount   int
	LastError      string
	FailedAt       time.Time
}
