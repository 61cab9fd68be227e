package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eviforge/internal/custody"
	"eviforge/internal/engine"
	"eviforge/internal/models"
	"eviforge/internal/modules"
	"eviforge/internal/store"
	"eviforge/internal/vault"
)

// memBroker is an in-memory Broker for tests.
type memBroker struct {
	ch   chan JobRef
	fail bool
}

func newMemBroker() *memBroker {
	return &memBroker{ch: make(chan JobRef, 64)}
}

func (b *memBroker) Enqueue(ctx context.Context, ref JobRef) error {
	if b.fail {
		return errors.New("broker unreachable")
	}
	b.ch <- ref
	return nil
}

func (b *memBroker) Dequeue(ctx context.Context, timeout time.Duration) (JobRef, bool, error) {
	select {
	case ref := <-b.ch:
		return ref, true, nil
	case <-time.After(timeout):
		return JobRef{}, false, nil
	case <-ctx.Done():
		return JobRef{}, false, ctx.Err()
	}
}

func (b *memBroker) Close() error { return nil }

type okModule struct{}

func (okModule) Name() string                    { return "ok" }
func (okModule) Tool() string                    { return "" }
func (okModule) Accepts(ev models.Evidence) bool { return true }
func (okModule) Run(ctx context.Context, inv modules.Invocation) (modules.Outcome, error) {
	if err := os.WriteFile(filepath.Join(inv.OutputDir, "result.txt"), []byte("done"), 0o644); err != nil {
		return modules.Outcome{}, err
	}
	return modules.Outcome{OK: true, Artifacts: []string{"result.txt"}}, nil
}

func newWorkerHarness(t *testing.T) (*store.Store, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	v, err := vault.New(filepath.Join(dir, "vault"))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	registry, err := modules.NewRegistry(okModule{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ledger := custody.New(v.LedgerPath)
	return st, engine.New(st, v, ledger, registry, time.Minute, nil)
}

func TestWorkerProcessesQueuedJobs(t *testing.T) {
	st, eng := newWorkerHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &models.Case{ID: "case-1", Name: "t", Status: models.CaseOpen, CreatedAt: time.Now().UTC()}
	if err := st.CreateCase(ctx, c); err != nil {
		t.Fatalf("create case: %v", err)
	}

	broker := newMemBroker()
	jobs := make([]*models.Job, 0, 3)
	for i := 0; i < 3; i++ {
		job := &models.Job{CaseID: c.ID, Module: "ok"}
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
		if err := broker.Enqueue(ctx, JobRef{CaseID: job.CaseID, Seq: job.Seq}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		jobs = append(jobs, job)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = NewWorker(broker, eng, nil).Run(ctx)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for _, job := range jobs {
		for {
			got, err := st.GetJob(ctx, job.CaseID, job.Seq)
			if err != nil {
				t.Fatalf("get job: %v", err)
			}
			if got.State.Terminal() {
				if got.State != models.JobSucceeded {
					t.Fatalf("expected succeeded, got %+v", got)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("job %d never finished (state %s)", job.Seq, got.State)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestWorkerSurvivesDequeueErrors(t *testing.T) {
	_, eng := newWorkerHarness(t)

	broker := &erroringBroker{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := NewWorker(broker, eng, nil).Run(ctx); err != nil {
		t.Fatalf("worker must exit cleanly on cancel, got %v", err)
	}
	if broker.calls == 0 {
		t.Fatal("expected at least one dequeue attempt")
	}
}

type erroringBroker struct {
	calls int
}

func (b *erroringBroker) Enqueue(ctx context.Context, ref JobRef) error { return nil }
func (b *erroringBroker) Dequeue(ctx context.Context, timeout time.Duration) (JobRef, bool, error) {
	b.calls++
	return JobRef{}, false, errors.New("connection refused")
}
func (b *erroringBroker) Close() error { return nil }
