package trading

import (
	"context"
	"log"
	"time"

	"apex-trader/internal/observability"
	"apex-trader/internal/storage"
)

// Default configuration values.
const (
	DefaultTickInterval     = 100 * time.Millisecond
	DefaultSnapshotInterval = 1 * time.Minute
)

// EngineOptions configures the accrual engine.
type EngineOptions struct {
	Book             *Book
	Snapshots        storage.SnapshotStore
	TickInterval     time.Duration
	SnapshotInterval time.Duration
	Logger           *log.Logger
}

// Engine drives the accrual loop: a fixed-interval tick advancing every
// active position's PnL, plus a coarser timer flushing earnings snapshots to
// the snapshot store.
type Engine struct {
	book             *Book
	snapshots        storage.SnapshotStore
	tickInterval     time.Duration
	snapshotInterval time.Duration
	logger           *log.Logger
}

// NewEngine creates an accrual engine.
func NewEngine(opts EngineOptions) *Engine {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	snap := opts.SnapshotInterval
	if snap <= 0 {
		snap = DefaultSnapshotInterval
	}
	return &Engine{
		book:             opts.Book,
		snapshots:        opts.Snapshots,
		tickInterval:     tick,
		snapshotInterval: snap,
		logger:           opts.Logger,
	}
}

// Run ticks until the context is canceled, then marks the book inactive.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	snapTicker := time.NewTicker(e.snapshotInterval)
	defer snapTicker.Stop()

	e.logf("accrual loop started (tick %v, snapshot %v)", e.tickInterval, e.snapshotInterval)

	for {
		select {
		case <-ctx.Done():
			e.book.Stop()
			e.logf("accrual loop stopped")
			return ctx.Err()
		case <-ticker.C:
			e.book.Tick()
			observability.RecordAccrualTick()
		case <-snapTicker.C:
			e.flushSnapshot(ctx)
		}
	}
}

// flushSnapshot writes one earnings snapshot. Storage failures are logged and
// counted, never fatal to the loop.
func (e *Engine) flushSnapshot(ctx context.Context) {
	if e.snapshots == nil {
		return
	}

	snap := e.book.Snapshot()
	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.snapshots.Insert(insertCtx, &snap); err != nil {
		observability.RecordSnapshotError()
		e.logf("flush earnings snapshot: %v", err)
		return
	}
	observability.RecordSnapshotFlush()
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
