// Package engine runs a module against evidence on behalf of exactly
// one job: claim, execute under a wall-clock timeout, persist artifacts
// and the terminal state, and append the single custody entry that
// records the job's final outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"eviforge/internal/custody"
	"eviforge/internal/models"
	"eviforge/internal/modules"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

// DefaultActor identifies the engine in custody entries it appends.
const DefaultActor = "engine"

// Store is the slice of the job store the engine needs.
type Store interface {
	GetJob(ctx context.Context, caseID string, seq int64) (*models.Job, error)
	TransitionJob(ctx context.Context, caseID string, seq int64, from, to models.JobState, up store.JobUpdate) error
	GetEvidence(ctx context.Context, id string) (*models.Evidence, error)
}

// JobResult is the engine's summary of one execution.
type JobResult struct {
	State     models.JobState
	Reason    string
	Artifacts []string
}

// Engine executes jobs. One Engine instance is shared by the inline
// pool and the queue worker loop; all coordination happens through
// conditional store transitions and the ledger's per-case lock.
type Engine struct {
	store    Store
	vault    *vault.Vault
	ledger   *custody.Ledger
	registry *modules.Registry
	timeout  time.Duration
	actor    string
	logger   *slog.Logger
}

// New creates an engine. timeout bounds each job's wall clock.
func New(st Store, v *vault.Vault, ledger *custody.Ledger, registry *modules.Registry, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		vault:    v,
		ledger:   ledger,
		registry: registry,
		timeout:  timeout,
		actor:    DefaultActor,
		logger:   logger,
	}
}

type moduleReturn struct {
	outcome modules.Outcome
	err     error
	crashed bool
}

// finalizePayload is the semantic content digested into the custody
// entry for a finalized job.
type finalizePayload struct {
	JobSeq    int64    `json:"job_seq"`
	Module    string   `json:"module"`
	State     string   `json:"state"`
	Reason    string   `json:"reason,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Execute runs the job identified by (caseID, seq) to a terminal state.
// Re-executing a job that is already running or terminal is a no-op
// returning the stored state, so retried queue deliveries and duplicate
// dispatches cannot run a module twice.
func (e *Engine) Execute(ctx context.Context, caseID string, seq int64) (JobResult, error) {
	if cause := e.ledger.Halted(caseID); cause != nil {
		return JobResult{}, fmt.Errorf("refusing execution, %w: %v", custody.ErrCaseHalted, cause)
	}

	job, err := e.store.GetJob(ctx, caseID, seq)
	if err != nil {
		return JobResult{}, err
	}
	if job.State != models.JobPending {
		return resultFromJob(job), nil
	}

	mod, registered := e.registry.Get(job.Module)
	if !registered {
		return e.failPending(ctx, job, models.ReasonUnknownModule)
	}
	if mod.Tool() != "" && !e.registry.Available(job.Module) {
		e.logger.Warn("module tool unavailable", "case", caseID, "job", seq, "module", job.Module, "tool", mod.Tool())
		return e.failPending(ctx, job, models.ReasonToolUnavailable)
	}

	var evidence models.Evidence
	if job.EvidenceID != "" {
		ev, err := e.store.GetEvidence(ctx, job.EvidenceID)
		if err != nil {
			return JobResult{}, err
		}
		evidence = *ev
	}

	started := time.Now().UTC()
	err = e.store.TransitionJob(ctx, caseID, seq, models.JobPending, models.JobRunning, store.JobUpdate{StartedAt: &started})
	if errors.Is(err, store.ErrStateConflict) {
		// Another worker claimed it first.
		current, getErr := e.store.GetJob(ctx, caseID, seq)
		if getErr != nil {
			return JobResult{}, getErr
		}
		return resultFromJob(current), nil
	}
	if err != nil {
		return JobResult{}, err
	}

	outputAbs, outputRel, err := e.vault.JobOutputDir(caseID, seq)
	if err != nil {
		return e.finalize(ctx, job, models.JobFailed, models.ReasonModuleCrashed, nil)
	}

	invocation := modules.Invocation{
		Evidence:     evidence,
		EvidencePath: e.vault.EvidencePath(evidence),
		OutputDir:    outputAbs,
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan moduleReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("module panic", "case", caseID, "job", seq, "module", job.Module, "panic", r)
				done <- moduleReturn{crashed: true}
			}
		}()
		outcome, err := mod.Run(runCtx, invocation)
		done <- moduleReturn{outcome: outcome, err: err}
	}()

	select {
	case <-runCtx.Done():
		if ctx.Err() != nil {
			// Outer cancellation still routes through the timed_out
			// terminal transition; finalization is never skipped.
			e.logger.Warn("job cancelled", "case", caseID, "job", seq)
		}
		// Partial artifacts may have forensic value; keep whatever the
		// module managed to write.
		partial := collectArtifacts(outputAbs, outputRel)
		return e.finalize(ctx, job, models.JobTimedOut, models.ReasonTimedOut, partial)

	case ret := <-done:
		switch {
		case ret.crashed:
			return e.finalize(ctx, job, models.JobFailed, models.ReasonModuleCrashed, collectArtifacts(outputAbs, outputRel))
		case ret.err != nil:
			// Invocation-boundary failure, not a module-reported
			// outcome; isolate it to this job.
			e.logger.Error("module invocation failed", "case", caseID, "job", seq, "module", job.Module, "error", ret.err)
			return e.finalize(ctx, job, models.JobFailed, models.ReasonModuleCrashed, collectArtifacts(outputAbs, outputRel))
		default:
			artifacts := make([]string, 0, len(ret.outcome.Artifacts))
			for _, rel := range ret.outcome.Artifacts {
				artifacts = append(artifacts, path.Join(outputRel, rel))
			}
			state := models.JobSucceeded
			reason := ""
			if !ret.outcome.OK {
				state = models.JobFailed
				reason = ret.outcome.Reason
			}
			return e.finalize(ctx, job, state, reason, artifacts)
		}
	}
}

// Fail finalizes a still-pending job without any execution attempt.
// The dispatcher uses it for queue_unavailable failures in strict
// queue mode. Jobs already past pending are returned as-is.
func (e *Engine) Fail(ctx context.Context, caseID string, seq int64, reason string) (JobResult, error) {
	job, err := e.store.GetJob(ctx, caseID, seq)
	if err != nil {
		return JobResult{}, err
	}
	if job.State != models.JobPending {
		return resultFromJob(job), nil
	}
	return e.failPending(ctx, job, reason)
}

// failPending finalizes a job straight out of pending, used for
// rejections that never spend any execution budget.
func (e *Engine) failPending(ctx context.Context, job *models.Job, reason string) (JobResult, error) {
	finished := time.Now().UTC()
	err := e.store.TransitionJob(ctx, job.CaseID, job.Seq, models.JobPending, models.JobFailed, store.JobUpdate{
		Reason:     reason,
		FinishedAt: &finished,
	})
	if errors.Is(err, store.ErrStateConflict) {
		current, getErr := e.store.GetJob(ctx, job.CaseID, job.Seq)
		if getErr != nil {
			return JobResult{}, getErr
		}
		return resultFromJob(current), nil
	}
	if err != nil {
		return JobResult{}, err
	}
	return e.appendFinalized(ctx, job, models.JobFailed, reason, nil)
}

// finalize persists the terminal transition out of running and appends
// the job's single custody entry.
func (e *Engine) finalize(ctx context.Context, job *models.Job, state models.JobState, reason string, artifacts []string) (JobResult, error) {
	finished := time.Now().UTC()
	up := store.JobUpdate{Reason: reason, FinishedAt: &finished}
	if len(artifacts) > 0 {
		up.Artifacts = artifacts
	}
	// Use a fresh context: finalization must complete even when the
	// job's own context has expired.
	storeCtx := context.WithoutCancel(ctx)
	if err := e.store.TransitionJob(storeCtx, job.CaseID, job.Seq, models.JobRunning, state, up); err != nil {
		return JobResult{}, err
	}
	return e.appendFinalized(storeCtx, job, state, reason, artifacts)
}

func (e *Engine) appendFinalized(ctx context.Context, job *models.Job, state models.JobState, reason string, artifacts []string) (JobResult, error) {
	result := JobResult{State: state, Reason: reason, Artifacts: artifacts}
	_, err := e.ledger.Append(ctx, job.CaseID, e.actor, models.ActionJobFinalized, finalizePayload{
		JobSeq:    job.Seq,
		Module:    job.Module,
		State:     string(state),
		Reason:    reason,
		Artifacts: artifacts,
	})
	if err != nil {
		// The job state is already durable; the halted ledger blocks
		// further finalization for this case until verified healthy.
		return result, fmt.Errorf("custody append for job %s/%d: %w", job.CaseID, job.Seq, err)
	}
	e.logger.Info("job finalized", "case", job.CaseID, "job", job.Seq, "module", job.Module, "state", state, "reason", reason)
	return result, nil
}

func resultFromJob(job *models.Job) JobResult {
	return JobResult{State: job.State, Reason: job.Reason, Artifacts: job.Artifacts}
}

// collectArtifacts walks a job's output directory and returns whatever
// files exist, case-relative. Used when a run ends without a trustable
// outcome descriptor.
func collectArtifacts(absDir, relDir string) []string {
	var out []string
	_ = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(absDir, p)
		if relErr != nil {
			return nil
		}
		out = append(out, path.Join(relDir, filepath.ToSlash(rel)))
		return nil
	})
	return out
}
