package audit

import (
	"context"
	"log/slog"
	"time"

	"tokensale/core/events"
)

// Emitter adapts the store to the engine's event sink. Persistence failures
// are logged, never propagated: a broken audit trail must not block sales.
type Emitter struct {
	store  *Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewEmitter wraps the store. logger may be nil, in which case the default
// logger is used.
func NewEmitter(store *Store, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, logger: logger, clock: time.Now}
}

// SetClock overrides the time source for deterministic tests.
func (e *Emitter) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || e.store == nil || evt == nil {
		return
	}
	record := evt.Record()
	if record == nil {
		return
	}
	if err := e.store.RecordEvent(context.Background(), record, e.clock()); err != nil {
		e.logger.Error("audit event dropped", "type", record.Type, "error", err)
	}
}
