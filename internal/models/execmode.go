package models

import (
	"fmt"
	"strings"
)

// ExecMode selects the execution topology for dispatched jobs.
type ExecMode int

const (
	// ModeQueue requires the distributed work queue; an enqueue failure
	// fails the job with queue_unavailable, never falling back.
	ModeQueue ExecMode = iota
	// ModeInline executes on the in-process worker pool.
	ModeInline
	// ModeAuto attempts the queue within a bounded window, then falls
	// back to inline. The decision is made before any execution starts.
	ModeAuto
)

func (m ExecMode) String() string {
	switch m {
	case ModeQueue:
		return "queue"
	case ModeInline:
		return "inline"
	case ModeAuto:
		return "auto"
	}
	return fmt.Sprintf("execmode(%d)", int(m))
}

func ParseExecMode(raw string) (ExecMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queue":
		return ModeQueue, nil
	case "inline":
		return ModeInline, nil
	case "auto", "":
		return ModeAuto, nil
	default:
		return ModeAuto, fmt.Errorf("invalid execution mode: %s", raw)
	}
}
