// Package dispatch validates job requests, creates job records, and
// routes them to an execution topology according to the configured
// execution mode.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eviforge/internal/engine"
	"eviforge/internal/models"
	"eviforge/internal/modules"
	"eviforge/internal/queue"
)

var (
	// ErrUnknownModule rejects a submission naming an unregistered
	// module. No job is created.
	ErrUnknownModule = errors.New("dispatch: unknown module")
	// ErrIncompatibleEvidence rejects a module/evidence pairing the
	// module's predicate refuses. No job is created.
	ErrIncompatibleEvidence = errors.New("dispatch: incompatible evidence")
	// ErrCaseClosed rejects submissions against a closed case.
	ErrCaseClosed = errors.New("dispatch: case is closed")
	// ErrEvidenceRequired rejects submissions without an evidence item.
	ErrEvidenceRequired = errors.New("dispatch: evidence is required")
)

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	GetCase(ctx context.Context, id string) (*models.Case, error)
	GetEvidence(ctx context.Context, id string) (*models.Evidence, error)
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, caseID string, seq int64) (*models.Job, error)
	SetDispatchPath(ctx context.Context, caseID string, seq int64, path models.DispatchPath) error
}

// Runner executes or fails jobs; satisfied by *engine.Engine.
type Runner interface {
	Execute(ctx context.Context, caseID string, seq int64) (engine.JobResult, error)
	Fail(ctx context.Context, caseID string, seq int64, reason string) (engine.JobResult, error)
}

// Options configures a Dispatcher.
type Options struct {
	Mode                models.ExecMode
	Store               Store
	Registry            *modules.Registry
	Runner              Runner
	Broker              queue.Broker // required for queue and auto modes
	InlineWorkers       int
	QueueAttemptTimeout time.Duration
	Logger              *slog.Logger
}

// Dispatcher owns execution-mode selection. It is the only component
// that decides where a job runs, and it decides exactly once per job,
// before any execution starts.
type Dispatcher struct {
	mode         models.ExecMode
	store        Store
	registry     *modules.Registry
	runner       Runner
	broker       queue.Broker
	pool         *Pool
	queueAttempt time.Duration
	logger       *slog.Logger
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempt := opts.QueueAttemptTimeout
	if attempt <= 0 {
		attempt = 2 * time.Second
	}
	return &Dispatcher{
		mode:         opts.Mode,
		store:        opts.Store,
		registry:     opts.Registry,
		runner:       opts.Runner,
		broker:       opts.Broker,
		pool:         NewPool(opts.Runner, int64(opts.InlineWorkers), logger),
		queueAttempt: attempt,
		logger:       logger,
	}
}

// Pool exposes the inline pool for shutdown draining.
func (d *Dispatcher) Pool() *Pool {
	return d.pool
}

// Submit validates the request, creates the job in pending, and routes
// it. Validation failures happen before the job exists, so rejected
// requests leave no side effects. The returned job is immediately
// readable by pollers even though execution may not have started.
func (d *Dispatcher) Submit(ctx context.Context, caseID, evidenceID, moduleName string) (*models.Job, error) {
	c, err := d.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseOpen {
		return nil, fmt.Errorf("%w: %s", ErrCaseClosed, caseID)
	}

	mod, ok := d.registry.Get(moduleName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, moduleName)
	}

	if evidenceID == "" {
		return nil, fmt.Errorf("%w: module %s", ErrEvidenceRequired, moduleName)
	}
	ev, err := d.store.GetEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if ev.CaseID != caseID {
		return nil, fmt.Errorf("%w: evidence %s belongs to another case", ErrIncompatibleEvidence, evidenceID)
	}
	if !mod.Accepts(*ev) {
		return nil, fmt.Errorf("%w: module %s does not accept %s", ErrIncompatibleEvidence, moduleName, ev.VaultPath)
	}

	job := &models.Job{CaseID: caseID, EvidenceID: evidenceID, Module: moduleName}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	return d.route(ctx, job)
}

// Redispatch re-routes a job only if it is still pending. Jobs in
// running or a terminal state are returned unchanged, making dispatch
// idempotent under client retries.
func (d *Dispatcher) Redispatch(ctx context.Context, caseID string, seq int64) (*models.Job, error) {
	job, err := d.store.GetJob(ctx, caseID, seq)
	if err != nil {
		return nil, err
	}
	if job.State != models.JobPending {
		return job, nil
	}
	return d.route(ctx, job)
}

// route performs the single dispatch decision for a job.
func (d *Dispatcher) route(ctx context.Context, job *models.Job) (*models.Job, error) {
	switch d.mode {
	case models.ModeInline:
		return d.routeInline(ctx, job, models.PathInline)

	case models.ModeQueue:
		// Record the path before enqueueing: once the job is on the
		// queue a worker may claim it at any moment, and the path is
		// only writable while the job is pending.
		job, err := d.markPath(ctx, job, models.PathQueue)
		if err != nil {
			return nil, err
		}
		if err := d.enqueue(ctx, job); err != nil {
			d.logger.Warn("enqueue failed in strict queue mode", "case", job.CaseID, "job", job.Seq, "error", err)
			result, failErr := d.runner.Fail(ctx, job.CaseID, job.Seq, models.ReasonQueueUnavailable)
			if failErr != nil {
				return nil, failErr
			}
			job.State = result.State
			job.Reason = result.Reason
			return job, nil
		}
		return job, nil

	case models.ModeAuto:
		job, err := d.markPath(ctx, job, models.PathQueue)
		if err != nil {
			return nil, err
		}
		if err := d.enqueue(ctx, job); err != nil {
			// Recorded path choice, not an error: the deployment keeps
			// working without its broker. The job never reached the
			// queue, so it is still pending and the path flips cleanly.
			d.logger.Warn("queue unavailable, falling back to inline", "case", job.CaseID, "job", job.Seq, "error", err)
			return d.routeInline(ctx, job, models.PathInlineFallback)
		}
		return job, nil

	default:
		return nil, fmt.Errorf("unhandled execution mode %s", d.mode)
	}
}

func (d *Dispatcher) routeInline(ctx context.Context, job *models.Job, path models.DispatchPath) (*models.Job, error) {
	job, err := d.markPath(ctx, job, path)
	if err != nil {
		return nil, err
	}
	d.pool.Submit(job.CaseID, job.Seq)
	return job, nil
}

func (d *Dispatcher) markPath(ctx context.Context, job *models.Job, path models.DispatchPath) (*models.Job, error) {
	if err := d.store.SetDispatchPath(ctx, job.CaseID, job.Seq, path); err != nil {
		return nil, err
	}
	job.DispatchPath = path
	return job, nil
}

// enqueue attempts the broker within the bounded attempt window.
func (d *Dispatcher) enqueue(ctx context.Context, job *models.Job) error {
	if d.broker == nil {
		return errors.New("no broker configured")
	}
	attemptCtx, cancel := context.WithTimeout(ctx, d.queueAttempt)
	defer cancel()
	return d.broker.Enqueue(attemptCtx, queue.JobRef{CaseID: job.CaseID, Seq: job.Seq})
}
