package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eviforge/internal/custody"
	"eviforge/internal/engine"
)

const (
	dequeueWait  = 5 * time.Second
	errorBackoff = time.Second
)

// Worker consumes job references from the broker and executes them.
// Multiple workers may run against the same broker and store; the
// engine's conditional claim keeps delivery at-most-once per job.
type Worker struct {
	broker Broker
	engine *engine.Engine
	logger *slog.Logger
}

// NewWorker creates a queue worker.
func NewWorker(broker Broker, eng *engine.Engine, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{broker: broker, engine: eng, logger: logger}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("queue worker started")
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("queue worker stopping")
			return nil
		}

		ref, ok, err := w.broker.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorBackoff):
			}
			continue
		}
		if !ok {
			continue
		}

		result, err := w.engine.Execute(ctx, ref.CaseID, ref.Seq)
		if err != nil {
			if errors.Is(err, custody.ErrCaseHalted) {
				// One case's halted ledger never stops work for others.
				w.logger.Error("case halted, job not finalized", "case", ref.CaseID, "job", ref.Seq, "error", err)
				continue
			}
			w.logger.Error("job execution failed", "case", ref.CaseID, "job", ref.Seq, "error", err)
			continue
		}
		w.logger.Info("job processed", "case", ref.CaseID, "job", ref.Seq, "state", result.State)
	}
}
