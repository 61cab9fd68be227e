package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"eviforge/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testCase(t *testing.T, st *Store) *models.Case {
	t.Helper()
	c := &models.Case{
		ID:        "c-" + t.Name(),
		Name:      "Test case",
		Status:    models.CaseOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateCase(context.Background(), c); err != nil {
		t.Fatalf("create case: %v", err)
	}
	return c
}

func TestCreateAndGetCase(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	got, err := st.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Test case" {
		t.Fatalf("expected name 'Test case', got %q", got.Name)
	}
	if got.Status != models.CaseOpen {
		t.Fatalf("expected status open, got %q", got.Status)
	}

	if _, err := st.GetCase(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseCase(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	if err := st.CloseCase(ctx, c.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := st.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.CaseClosed {
		t.Fatalf("expected closed, got %q", got.Status)
	}

	// Closing twice is rejected: closed is terminal.
	if err := st.CloseCase(ctx, c.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on double close, got %v", err)
	}
}

func TestCreateEvidenceUniqueTarget(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	ev := &models.Evidence{
		ID:         "ev-1",
		CaseID:     c.ID,
		Source:     "/tmp/disk.img",
		VaultPath:  "evidence/disk.img",
		SizeBytes:  42,
		MD5:        "d41d8cd98f00b204e9800998ecf8427e",
		SHA256:     "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		IngestedAt: time.Now().UTC(),
	}
	if err := st.CreateEvidence(ctx, ev); err != nil {
		t.Fatalf("create evidence: %v", err)
	}

	dup := *ev
	dup.ID = "ev-2"
	if err := st.CreateEvidence(ctx, &dup); err == nil {
		t.Fatal("expected unique constraint violation for duplicate vault path")
	}

	items, err := st.ListEvidenceByCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 evidence item, got %d", len(items))
	}
}

func TestCreateJobAssignsMonotonicSeq(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	for want := int64(1); want <= 3; want++ {
		job := &models.Job{CaseID: c.ID, Module: "strings"}
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
		if job.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, job.Seq)
		}
		if job.State != models.JobPending {
			t.Fatalf("expected pending, got %q", job.State)
		}
	}
}

func TestTransitionJobConditional(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	job := &models.Job{CaseID: c.ID, Module: "strings"}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	now := time.Now().UTC()
	if err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobPending, models.JobRunning, JobUpdate{StartedAt: &now}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Second claim from the stale pending state loses the race.
	if err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobPending, models.JobRunning, JobUpdate{StartedAt: &now}); err != ErrStateConflict {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	// Illegal transitions are rejected before touching the database.
	if err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobRunning, models.JobPending, JobUpdate{}); err == nil {
		t.Fatal("expected illegal transition error")
	}

	fin := time.Now().UTC()
	err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobRunning, models.JobSucceeded, JobUpdate{
		FinishedAt: &fin,
		Artifacts:  []string{"artifacts/1/strings.txt"},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := st.GetJob(ctx, c.ID, job.Seq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != models.JobSucceeded {
		t.Fatalf("expected succeeded, got %q", got.State)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatal("expected started and finished timestamps")
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0] != "artifacts/1/strings.txt" {
		t.Fatalf("unexpected artifacts %v", got.Artifacts)
	}

	// Terminal states accept no further transitions.
	if err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobSucceeded, models.JobFailed, JobUpdate{}); err == nil {
		t.Fatal("expected rejection out of terminal state")
	}
}

func TestSetDispatchPathOnlyWhilePending(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	job := &models.Job{CaseID: c.ID, Module: "strings"}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := st.SetDispatchPath(ctx, c.ID, job.Seq, models.PathQueue); err != nil {
		t.Fatalf("set path: %v", err)
	}
	got, err := st.GetJob(ctx, c.ID, job.Seq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DispatchPath != models.PathQueue {
		t.Fatalf("expected path queue, got %q", got.DispatchPath)
	}

	now := time.Now().UTC()
	if err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobPending, models.JobRunning, JobUpdate{StartedAt: &now}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	fin := time.Now().UTC()
	if err := st.TransitionJob(ctx, c.ID, job.Seq, models.JobRunning, models.JobSucceeded, JobUpdate{FinishedAt: &fin}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// A stale redispatch must not rewrite history on a finished job.
	if err := st.SetDispatchPath(ctx, c.ID, job.Seq, models.PathInlineFallback); err != nil {
		t.Fatalf("set path after finish: %v", err)
	}
	got, err = st.GetJob(ctx, c.ID, job.Seq)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DispatchPath != models.PathQueue {
		t.Fatalf("expected path to remain queue, got %q", got.DispatchPath)
	}
}

func TestStats(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := testCase(t, st)

	job := &models.Job{CaseID: c.ID, Module: "inventory"}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Cases != 1 || stats.JobsRunning != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
