package models

import "testing"

func TestJobStateTransitions(t *testing.T) {
	cases := []struct {
		from, to JobState
		ok       bool
	}{
		{JobPending, JobRunning, true},
		{JobPending, JobFailed, true},
		{JobPending, JobSucceeded, false},
		{JobPending, JobTimedOut, false},
		{JobRunning, JobSucceeded, true},
		{JobRunning, JobFailed, true},
		{JobRunning, JobTimedOut, true},
		{JobRunning, JobPending, false},
		{JobSucceeded, JobRunning, false},
		{JobFailed, JobRunning, false},
		{JobTimedOut, JobFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []JobState{JobSucceeded, JobFailed, JobTimedOut} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []JobState{JobPending, JobRunning} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestParseExecMode(t *testing.T) {
	for raw, want := range map[string]ExecMode{
		"queue":  ModeQueue,
		"inline": ModeInline,
		"auto":   ModeAuto,
		"AUTO":   ModeAuto,
		"":       ModeAuto,
	} {
		got, err := ParseExecMode(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Errorf("parse %q = %s, want %s", raw, got, want)
		}
	}

	if _, err := ParseExecMode("batch"); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}
