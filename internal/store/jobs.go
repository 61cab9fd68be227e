package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eviforge/internal/models"
)

// ErrStateConflict is returned when a conditional job transition finds
// the job in a different state than expected. Callers treat it as
// "someone else got there first" and re-read the job.
var ErrStateConflict = errors.New("job state conflict")

// JobUpdate carries the optional fields set alongside a transition.
type JobUpdate struct {
	Reason       string
	DispatchPath models.DispatchPath
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Artifacts    []string
}

// CreateJob inserts a job in the pending state and assigns the next
// per-case sequence number inside a transaction.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) (err error) {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if job.State == "" {
		job.State = models.JobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int64
	if err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM jobs WHERE case_id = ?
	`, job.CaseID).Scan(&next); err != nil {
		return err
	}
	job.Seq = next

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (case_id, seq, evidence_id, module, state, reason, dispatch_path, artifacts, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
	`,
		job.CaseID,
		job.Seq,
		nullIfEmpty(job.EvidenceID),
		job.Module,
		string(job.State),
		nullIfEmpty(job.Reason),
		nullIfEmpty(string(job.DispatchPath)),
		marshalArtifacts(job.Artifacts),
		formatTime(job.CreatedAt),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetJob returns one job by case and sequence number.
func (s *Store) GetJob(ctx context.Context, caseID string, seq int64) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT case_id, seq, evidence_id, module, state, reason, dispatch_path, artifacts, created_at, started_at, finished_at
		FROM jobs WHERE case_id = ? AND seq = ?
	`, caseID, seq)
	return scanJob(row)
}

// ListJobsByCase returns a case's jobs, newest first.
func (s *Store) ListJobsByCase(ctx context.Context, caseID string) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, seq, evidence_id, module, state, reason, dispatch_path, artifacts, created_at, started_at, finished_at
		FROM jobs WHERE case_id = ? ORDER BY seq DESC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// TransitionJob moves a job from an expected prior state to a new state.
// The update applies only when the stored state still equals from; a
// zero-row update returns ErrStateConflict. This is the at-most-once
// claim primitive shared by inline and queue workers.
func (s *Store) TransitionJob(ctx context.Context, caseID string, seq int64, from, to models.JobState, up JobUpdate) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	query := "UPDATE jobs SET state = ?"
	args := []any{string(to)}
	if up.Reason != "" {
		query += ", reason = ?"
		args = append(args, up.Reason)
	}
	if up.DispatchPath != "" {
		query += ", dispatch_path = ?"
		args = append(args, string(up.DispatchPath))
	}
	if up.StartedAt != nil {
		query += ", started_at = ?"
		args = append(args, formatTime(*up.StartedAt))
	}
	if up.FinishedAt != nil {
		query += ", finished_at = ?"
		args = append(args, formatTime(*up.FinishedAt))
	}
	if up.Artifacts != nil {
		query += ", artifacts = ?"
		args = append(args, marshalArtifacts(up.Artifacts))
	}
	query += " WHERE case_id = ? AND seq = ? AND state = ?"
	args = append(args, caseID, seq, string(from))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetDispatchPath records which topology a still-pending job was routed
// through, before any execution starts. A job that already left pending
// keeps the path it was dispatched with; losing that race is not an
// error.
func (s *Store) SetDispatchPath(ctx context.Context, caseID string, seq int64, path models.DispatchPath) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET dispatch_path = ? WHERE case_id = ? AND seq = ? AND state = ?
	`, string(path), caseID, seq, string(models.JobPending))
	return err
}

func marshalArtifacts(paths []string) any {
	if len(paths) == 0 {
		return nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return nil
	}
	return string(data)
}

func scanJob(scanner rowScanner) (*models.Job, error) {
	var job models.Job
	var evidenceID, reason, dispatchPath, artifacts sql.NullString
	var createdAt string
	var startedAt, finishedAt sql.NullString

	err := scanner.Scan(&job.CaseID, &job.Seq, &evidenceID, &job.Module, (*string)(&job.State),
		&reason, &dispatchPath, &artifacts, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.EvidenceID = evidenceID.String
	job.Reason = reason.String
	job.DispatchPath = models.DispatchPath(dispatchPath.String)
	if artifacts.Valid && artifacts.String != "" {
		if err := json.Unmarshal([]byte(artifacts.String), &job.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for job %s/%d: %w", job.CaseID, job.Seq, err)
		}
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	job.CreatedAt = t
	if job.StartedAt, err = scanNullTime(startedAt); err != nil {
		return nil, err
	}
	if job.FinishedAt, err = scanNullTime(finishedAt); err != nil {
		return nil, err
	}
	return &job, nil
}
