package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool is the bounded in-process execution topology. Submitted jobs
// run on their own goroutines, gated by a weighted semaphore so at
// most workers jobs execute concurrently.
type Pool struct {
	runner Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates an inline pool with the given concurrency bound.
func NewPool(runner Runner, workers int64, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		runner: runner,
		sem:    semaphore.NewWeighted(workers),
		logger: logger,
	}
}

// Submit schedules one job for asynchronous execution. Job execution
// is detached from the submitting request's context; only the per-job
// timeout cancels a run.
func (p *Pool) Submit(caseID string, seq int64) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx := context.Background()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.logger.Error("inline pool acquire", "case", caseID, "job", seq, "error", err)
			return
		}
		defer p.sem.Release(1)

		if _, err := p.runner.Execute(ctx, caseID, seq); err != nil {
			p.logger.Error("inline execution", "case", caseID, "job", seq, "error", err)
		}
	}()
}

// Wait blocks until every submitted job has finished. Used at shutdown
// so in-flight jobs finalize before the process exits.
func (p *Pool) Wait() {
	p.wg.Wait()
}
