package audit

import (
	"context"
	"log/slog"
	"time"

	"fundcore/core/events"
	"fundcore/observability"
	"fundcore/observability/logging"
)

// Sink adapts the store to events.Emitter. Only operation events are
// recorded; domain events travel inside them by type.
type Sink struct {
	store   *Store
	log     *slog.Logger
	timeout time.Duration
}

func NewSink(store *Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, log: logger.With(slog.String("component", "audit")), timeout: 5 * time.Second}
}

// Emit implements events.Emitter. Ledger state is already committed when
// operations arrive, so append failures are logged rather than returned.
func (s *Sink) Emit(evt events.Event) {
	op, ok := evt.(events.Operation)
	if !ok || s == nil || s.store == nil {
		return
	}
	caller := ""
	if !op.Caller.IsZero() {
		caller = op.Caller.String()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	rec, err := s.store.Append(ctx, Entry{
		Entity: op.Entity,
		Kind:   op.Kind,
		Caller: caller,
		State:  op.StateJSON(),
		At:     op.At,
	})
	if err != nil {
		s.log.Error("audit append failed",
			slog.String("kind", op.Kind),
			slog.String("entity", op.Entity),
			logging.AddressField("caller", caller),
			slog.Any("error", err))
		return
	}
	observability.Ledger().RecordAudit()
	s.log.Debug("audit record appended", slog.Uint64("seq", rec.Seq), slog.String("kind", rec.Kind))
}
