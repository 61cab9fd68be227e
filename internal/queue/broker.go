// Package queue is the distributed execution topology: a broker that
// carries job references between the dispatcher and a pool of worker
// processes, all sharing one job store and ledger.
package queue

import (
	"context"
	"time"
)

// JobRef identifies one dispatched job on the wire. The queue carries
// references only; all job state lives in the store.
type JobRef struct {
	CaseID string `json:"case_id"`
	Seq    int64  `json:"seq"`
}

// Broker is the work queue contract. Enqueue must either durably hand
// the reference to the queue or return an error; the dispatcher turns
// enqueue errors into queue_unavailable failures or inline fallback
// depending on the execution mode.
type Broker interface {
	Enqueue(ctx context.Context, ref JobRef) error
	// Dequeue blocks up to timeout for the next reference. The second
	// return is false when the wait expired with nothing queued.
	Dequeue(ctx context.Context, timeout time.Duration) (JobRef, bool, error)
	Close() error
}
