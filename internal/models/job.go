package models

import (
	"fmt"
	"strings"
	"time"
)

// JobState defines the job lifecycle states.
//
// pending -> running -> {succeeded, failed, timed_out}
//
// Terminal states have no outgoing transitions.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
)

// DispatchPath records which execution topology actually ran a job.
type DispatchPath string

const (
	PathQueue          DispatchPath = "queue"
	PathInline         DispatchPath = "inline"
	PathInlineFallback DispatchPath = "inline_fallback"
)

// Reason codes for failed and timed-out jobs and for rejected requests.
const (
	ReasonIntegrityMismatch    = "integrity_mismatch"
	ReasonDuplicateTarget      = "duplicate_target"
	ReasonPathOutsideVault     = "path_outside_vault"
	ReasonUnknownModule        = "unknown_module"
	ReasonIncompatibleEvidence = "incompatible_evidence"
	ReasonToolUnavailable      = "tool_unavailable"
	ReasonQueueUnavailable     = "queue_unavailable"
	ReasonTimedOut             = "timed_out"
	ReasonModuleCrashed        = "module_crashed"
)

// Job is one request to run a module against an evidence item. Seq is
// assigned monotonically per case starting at 1. Jobs are created once,
// mutated only along the state machine, and never deleted.
type Job struct {
	CaseID       string       `json:"case_id"`
	Seq          int64        `json:"seq"`
	EvidenceID   string       `json:"evidence_id,omitempty"`
	Module       string       `json:"module"`
	State        JobState     `json:"state"`
	Reason       string       `json:"reason,omitempty"`
	DispatchPath DispatchPath `json:"dispatch_path,omitempty"`
	Artifacts    []string     `json:"artifacts,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// Artifact is one file produced by a job, path-relative to the case
// vault root. SHA256 is optional and set only for artifacts whose
// integrity must be independently verifiable.
type Artifact struct {
	Path   string `json:"path"`
	JobSeq int64  `json:"job_seq"`
	SHA256 string `json:"sha256,omitempty"`
}

var jobTransitions = map[JobState][]JobState{
	JobPending: {JobRunning, JobFailed},
	JobRunning: {JobSucceeded, JobFailed, JobTimedOut},
}

// Terminal reports whether a state has no outgoing transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobTimedOut:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to JobState) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseJobState(raw string) (JobState, error) {
	value := JobState(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case JobPending, JobRunning, JobSucceeded, JobFailed, JobTimedOut:
		return value, nil
	case "":
		return "", fmt.Errorf("job state is required")
	default:
		return "", fmt.Errorf("invalid job state: %s", value)
	}
}
