// Package worker consumes budget events from the broker. Rate updates are
// persisted into the shared snapshot store and transaction changes are
// mirrored into an external sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"budgettracker/internal/amqp"
	applog "budgettracker/internal/log"
	"budgettracker/internal/rates"
	"budgettracker/internal/sheets"
)

// Consumer delivers envelopes to a handler until ctx is done.
type Consumer interface {
	ConsumeWithRetry(ctx context.Context, handler amqp.Handler) error
}

type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

type EventWorker struct {
	snapshots rates.SnapshotStore
	mirror    sheets.TransactionMirror
	logger    *applog.Logger

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	err     error
}

// NewEventWorker builds a worker. Either dependency may be nil, in which case
// the matching events are acknowledged and skipped.
func NewEventWorker(snapshots rates.SnapshotStore, mirror sheets.TransactionMirror, logger *applog.Logger) *EventWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &EventWorker{
		snapshots: snapshots,
		mirror:    mirror,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEnvelope dispatches one event. It satisfies amqp.Handler.
func (w *EventWorker) HandleEnvelope(ctx context.Context, env amqp.Envelope) error {
	var err error
	switch env.Type {
	case amqp.EventRatesUpdated:
		err = w.handleRates(ctx, env)
	case amqp.EventTransactionChanged:
		err = w.handleTransaction(ctx, env)
	default:
		err = fmt.Errorf("%w: %s", amqp.ErrUnknownEvent, env.Type)
	}
	if err != nil {
		w.failed.Add(1)
		return err
	}
	w.processed.Add(1)
	return nil
}

// handleRates keeps the newest snapshot; an older one arriving late is ignored.
func (w *EventWorker) handleRates(ctx context.Context, env amqp.Envelope) error {
	ev, err := env.RatesUpdated()
	if err != nil {
		return err
	}
	if w.snapshots == nil {
		w.skipped.Add(1)
		return nil
	}
	if len(ev.Snapshot.Rates) == 0 {
		return fmt.Errorf("%w: empty rate snapshot", amqp.ErrUnknownEvent)
	}

	current, ok, err := w.snapshots.LoadSnapshot(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to read stored rate snapshot, overwriting", applog.FieldError, err)
	} else if ok && !ev.Snapshot.Timestamp.After(current.Timestamp) {
		w.skipped.Add(1)
		w.logger.DebugContext(ctx, "Ignoring stale rate snapshot",
			"received", ev.Snapshot.Timestamp, "stored", current.Timestamp)
		return nil
	}

	if err := w.snapshots.SaveSnapshot(ctx, ev.Snapshot); err != nil {
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	applog.NewStructuredLogger(w.logger).LogRatesUpdated(ctx,
		string(ev.Snapshot.BaseCurrency), string(ev.Provenance), len(ev.Snapshot.Rates))
	return nil
}

func (w *EventWorker) handleTransaction(ctx context.Context, env amqp.Envelope) error {
	ev, err := env.TransactionChanged()
	if err != nil {
		return err
	}
	if w.mirror == nil {
		w.skipped.Add(1)
		return nil
	}
	if ev.UserID == "" {
		return fmt.Errorf("%w: transaction event without user", amqp.ErrUnknownEvent)
	}

	switch ev.Op {
	case amqp.OpCreated, amqp.OpUpdated:
		if ev.Transaction == nil {
			return fmt.Errorf("%w: %s without transaction", amqp.ErrUnknownEvent, ev.Op)
		}
		err = w.mirror.Upsert(ctx, ev.UserID, *ev.Transaction)
	case amqp.OpDeleted:
		err = w.mirror.Delete(ctx, ev.UserID, ev.TransactionID)
	case amqp.OpCleared:
		err = w.mirror.DeleteUser(ctx, ev.UserID)
	default:
		return fmt.Errorf("%w: transaction op %q", amqp.ErrUnknownEvent, ev.Op)
	}
	if err != nil {
		return fmt.Errorf("mirror %s: %w", ev.Op, err)
	}

	w.logger.InfoContext(ctx, "Mirrored transaction change",
		applog.FieldOperation, ev.Op,
		applog.FieldUserID, ev.UserID,
		applog.FieldTransactionID, ev.TransactionID)
	return nil
}

// Start begins consuming in the background. Returns an error if already running.
func (w *EventWorker) Start(ctx context.Context, consumer Consumer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("event worker is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.err = nil

	go func() {
		defer close(w.doneCh)
		err := consumer.ConsumeWithRetry(runCtx, w.HandleEnvelope)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(runCtx, "Event consumer exited", applog.FieldError, err)
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
		}
	}()

	w.logger.InfoContext(ctx, "Event worker started",
		"snapshots", w.snapshots != nil,
		"mirror", w.mirror != nil)
	return nil
}

// Stop cancels consumption and waits for the consumer to return.
func (w *EventWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		w.logger.InfoContext(ctx, "Event worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Event worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	err := w.err
	w.mu.Unlock()
	return err
}

func (w *EventWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *EventWorker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
	}
}
