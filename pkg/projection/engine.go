// Package projection materializes read models from the event log. Each
// projection advances an own bookmark; handler and bookmark commit in one
// transaction, so apply-exactly-once holds as long as handlers succeed.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

type engineConfig struct {
	interval         time.Duration
	batchSize        int
	failureThreshold int
	logger           zerolog.Logger
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		interval:         200 * time.Millisecond,
		batchSize:        200,
		failureThreshold: 5,
		logger:           zerolog.Nop(),
	}
}

// EngineOption configures the engine.
type EngineOption func(*engineConfig)

// WithInterval sets the polling interval between catch-up rounds.
func WithInterval(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.interval = d }
}

// WithBatchSize sets how many events one round fetches per projection.
func WithBatchSize(n int) EngineOption {
	return func(c *engineConfig) { c.batchSize = n }
}

// WithFailureThreshold sets how many failures of a single event escalate
// the projection to FAILED.
func WithFailureThreshold(n int) EngineOption {
	return func(c *engineConfig) { c.failureThreshold = n }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(c *engineConfig) { c.logger = logger }
}

// Engine drives registered projections against the event log. It polls on
// an interval and can be woken early via Trigger (wired to the event bus).
type Engine struct {
	db        *sql.DB
	es        store.EventStore
	bookmarks *Bookmarks
	config    engineConfig

	mu          sync.Mutex
	projections map[string]store.Projection
	wakers      map[string]chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	eventsApplied metric.Int64Counter
	handlerErrors metric.Int64Counter
}

// NewEngine creates an engine over the shared database handle.
func NewEngine(db *sql.DB, es store.EventStore, opts ...EngineOption) *Engine {
	config := defaultEngineConfig()
	for _, opt := range opts {
		opt(&config)
	}

	meter := otel.Meter("identra/projection")
	eventsApplied, _ := meter.Int64Counter("projection.events.applied")
	handlerErrors, _ := meter.Int64Counter("projection.handler.errors")

	return &Engine{
		db:            db,
		es:            es,
		bookmarks:     NewBookmarks(db),
		config:        config,
		projections:   make(map[string]store.Projection),
		wakers:        make(map[string]chan struct{}),
		eventsApplied: eventsApplied,
		handlerErrors: handlerErrors,
	}
}

// Register adds a projection. Must be called before Start.
func (e *Engine) Register(p store.Projection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.projections[p.Name()] = p
	e.wakers[p.Name()] = make(chan struct{}, 1)
}

// Bookmarks exposes the bookmark store for status queries.
func (e *Engine) Bookmarks() *Bookmarks { return e.bookmarks }

// Names lists the registered projections, sorted.
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.projections))
	for name := range e.projections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one catch-up loop per projection. It returns immediately;
// Stop waits for the loops to drain.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = cancel
	for name, p := range e.projections {
		wake := e.wakers[name]
		e.wg.Add(1)
		go e.run(ctx, p, wake)
	}
	e.mu.Unlock()
}

// Stop cancels the loops and waits for them to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// CatchUp synchronously drains pending events for all registered
// projections. Used on startup before serving queries.
func (e *Engine) CatchUp(ctx context.Context) error {
	e.mu.Lock()
	projections := make([]store.Projection, 0, len(e.projections))
	for _, p := range e.projections {
		projections = append(projections, p)
	}
	e.mu.Unlock()

	for _, p := range projections {
		for {
			more, err := e.processOnce(ctx, p)
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
	}
	return nil
}

// Trigger wakes all projection loops, typically on an event-bus notification.
func (e *Engine) Trigger() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, wake := range e.wakers {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) run(ctx context.Context, p store.Projection, wake <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.interval)
	defer ticker.Stop()

	logger := e.config.logger.With().Str("projection", p.Name()).Logger()
	for {
		more, err := e.processOnce(ctx, p)
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("projection round failed")
		}
		if more {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// processOnce applies one batch. The bool result reports whether a full
// batch was consumed, i.e. more events are likely pending.
func (e *Engine) processOnce(ctx context.Context, p store.Projection) (bool, error) {
	state, err := e.bookmarks.LoadState(ctx, p.Name())
	if err != nil {
		return false, err
	}
	if state.Status == store.ProjectionStatusPaused || state.Status == store.ProjectionStatusFailed {
		return false, nil
	}

	bookmark, err := e.bookmarks.Load(ctx, p.Name())
	if err != nil {
		return false, err
	}

	events, err := e.es.Query(ctx, &store.SearchFilter{
		EventTypes:    p.EventTypes(),
		AfterPosition: bookmark.Position,
		Limit:         e.config.batchSize,
	})
	if err != nil {
		return false, err
	}

	for _, event := range events {
		if err := e.applyEvent(ctx, p, event); err != nil {
			e.handlerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", p.Name())))

			count, recordErr := e.bookmarks.RecordFailure(ctx, p.Name(), event, err)
			if recordErr != nil {
				return false, recordErr
			}
			e.config.logger.Warn().
				Str("projection", p.Name()).
				Str("event_id", event.ID).
				Int("failure_count", count).
				Err(err).
				Msg("projection handler failed")

			if count >= e.config.failureThreshold {
				return false, e.bookmarks.SaveState(ctx, &store.ProjectionState{
					ProjectionName: p.Name(),
					Status:         store.ProjectionStatusFailed,
					Message:        fmt.Sprintf("event %s failed %d times: %v", event.ID, count, err),
				})
			}

			// Skip past the poisoned event so the stream keeps flowing;
			// RetryFailed reapplies it out of band.
			if err := e.advanceBookmark(ctx, p.Name(), event); err != nil {
				return false, err
			}
			continue
		}
		e.eventsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", p.Name())))
	}

	return len(events) == e.config.batchSize, nil
}

// applyEvent runs the handler and advances the bookmark in one transaction.
func (e *Engine) applyEvent(ctx context.Context, p store.Projection, event *domain.Event) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unavailable(domain.CodeUnavailable, "begin projection transaction").WithParent(err)
	}
	defer tx.Rollback()

	if err := p.Handle(ctx, tx, event); err != nil {
		return err
	}
	if err := e.bookmarks.SaveInTx(ctx, tx, &store.Bookmark{
		ProjectionName: p.Name(),
		Position:       event.Position,
		LastEventID:    event.ID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) advanceBookmark(ctx context.Context, projectionName string, event *domain.Event) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unavailable(domain.CodeUnavailable, "begin bookmark transaction").WithParent(err)
	}
	defer tx.Rollback()

	if err := e.bookmarks.SaveInTx(ctx, tx, &store.Bookmark{
		ProjectionName: projectionName,
		Position:       event.Position,
		LastEventID:    event.ID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RetryFailed reapplies the recorded failed events of one projection.
// Events that apply cleanly are removed from the failure table; a FAILED
// projection with no remaining failures returns to READY.
func (e *Engine) RetryFailed(ctx context.Context, projectionName string) error {
	p, err := e.projection(projectionName)
	if err != nil {
		return err
	}

	failed, err := e.bookmarks.FailedEvents(ctx, projectionName)
	if err != nil {
		return err
	}

	for _, fe := range failed {
		events, err := e.es.Query(ctx, &store.SearchFilter{
			AfterPosition: fe.Position - 1,
			Limit:         1,
		})
		if err != nil {
			return err
		}
		if len(events) == 0 || events[0].ID != fe.EventID {
			continue
		}
		event := events[0]

		tx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			return domain.Unavailable(domain.CodeUnavailable, "begin retry transaction").WithParent(err)
		}
		if err := p.Handle(ctx, tx, event); err != nil {
			tx.Rollback()
			if _, recordErr := e.bookmarks.RecordFailure(ctx, projectionName, event, err); recordErr != nil {
				return recordErr
			}
			continue
		}
		if err := e.bookmarks.ResolveFailureInTx(ctx, tx, projectionName, event.ID); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return domain.Internal("PROJECTION-Retry", "commit retry").WithParent(err)
		}
	}

	remaining, err := e.bookmarks.FailedEvents(ctx, projectionName)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		state, err := e.bookmarks.LoadState(ctx, projectionName)
		if err != nil {
			return err
		}
		if state.Status == store.ProjectionStatusFailed {
			return e.bookmarks.SaveState(ctx, &store.ProjectionState{
				ProjectionName: projectionName,
				Status:         store.ProjectionStatusReady,
				Message:        "recovered after retry",
			})
		}
	}
	return nil
}

// Rebuild resets the projection and replays the full log.
func (e *Engine) Rebuild(ctx context.Context, projectionName string) error {
	p, err := e.projection(projectionName)
	if err != nil {
		return err
	}

	if err := e.bookmarks.SaveState(ctx, &store.ProjectionState{
		ProjectionName: projectionName,
		Status:         store.ProjectionStatusRebuilding,
		Message:        "rebuild started",
	}); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unavailable(domain.CodeUnavailable, "begin rebuild transaction").WithParent(err)
	}
	if err := p.Reset(ctx, tx); err != nil {
		tx.Rollback()
		return e.failRebuild(ctx, projectionName, err)
	}
	if err := e.bookmarks.DeleteInTx(ctx, tx, projectionName); err != nil {
		tx.Rollback()
		return e.failRebuild(ctx, projectionName, err)
	}
	if err := e.bookmarks.ClearFailuresInTx(ctx, tx, projectionName); err != nil {
		tx.Rollback()
		return e.failRebuild(ctx, projectionName, err)
	}
	if err := tx.Commit(); err != nil {
		return e.failRebuild(ctx, projectionName, err)
	}

	for {
		more, err := e.replayOnce(ctx, p)
		if err != nil {
			return e.failRebuild(ctx, projectionName, err)
		}
		if !more {
			break
		}
	}

	return e.bookmarks.SaveState(ctx, &store.ProjectionState{
		ProjectionName: projectionName,
		Status:         store.ProjectionStatusReady,
		Message:        "rebuild complete",
	})
}

// replayOnce is processOnce without the state gate, used during rebuilds
// while the projection reports REBUILDING.
func (e *Engine) replayOnce(ctx context.Context, p store.Projection) (bool, error) {
	bookmark, err := e.bookmarks.Load(ctx, p.Name())
	if err != nil {
		return false, err
	}
	events, err := e.es.Query(ctx, &store.SearchFilter{
		EventTypes:    p.EventTypes(),
		AfterPosition: bookmark.Position,
		Limit:         e.config.batchSize,
	})
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if err := e.applyEvent(ctx, p, event); err != nil {
			return false, err
		}
	}
	return len(events) == e.config.batchSize, nil
}

func (e *Engine) failRebuild(ctx context.Context, projectionName string, cause error) error {
	_ = e.bookmarks.SaveState(ctx, &store.ProjectionState{
		ProjectionName: projectionName,
		Status:         store.ProjectionStatusFailed,
		Message:        fmt.Sprintf("rebuild failed: %v", cause),
	})
	return cause
}

// Pause stops a projection from processing until Resume.
func (e *Engine) Pause(ctx context.Context, projectionName string) error {
	if _, err := e.projection(projectionName); err != nil {
		return err
	}
	return e.bookmarks.SaveState(ctx, &store.ProjectionState{
		ProjectionName: projectionName,
		Status:         store.ProjectionStatusPaused,
	})
}

// Resume returns a paused projection to READY.
func (e *Engine) Resume(ctx context.Context, projectionName string) error {
	if _, err := e.projection(projectionName); err != nil {
		return err
	}
	return e.bookmarks.SaveState(ctx, &store.ProjectionState{
		ProjectionName: projectionName,
		Status:         store.ProjectionStatusReady,
	})
}

// Status reports the projection's operational state and bookmark.
func (e *Engine) Status(ctx context.Context, projectionName string) (*store.ProjectionState, *store.Bookmark, error) {
	if _, err := e.projection(projectionName); err != nil {
		return nil, nil, err
	}
	state, err := e.bookmarks.LoadState(ctx, projectionName)
	if err != nil {
		return nil, nil, err
	}
	bookmark, err := e.bookmarks.Load(ctx, projectionName)
	if err != nil {
		return nil, nil, err
	}
	return state, bookmark, nil
}

func (e *Engine) projection(name string) (store.Projection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projections[name]
	if !ok {
		return nil, domain.NotFound("PROJECTION-Unknown", "projection not registered")
	}
	return p, nil
}
