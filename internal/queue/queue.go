// Package queue implements the pending-job FIFO consumed by the worker
// pool: an unbounded queue with a blocking, timeout-bounded take and a
// sentinel element used to wake and stop workers during shutdown.
package queue

import (
	"sync"
	"time"

	"github.com/le-stats-sportif/webserver/pkg/types"
)

// Queue is a thread-safe FIFO of pending jobs. A nil element is the
// sentinel: it is distinct from any real job (Put rejects nil) and tells
// the worker that dequeues it to exit.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*types.Job
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a job and wakes one waiting worker. It never blocks.
func (q *Queue) Put(job *types.Job) {
	if job == nil {
		panic("queue: Put called with nil job")
	}
	q.push(job)
}

// PutSentinel appends a sentinel element. One sentinel stops exactly one
// worker, so shutdown posts one per worker.
func (q *Queue) PutSentinel() {
	q.push(nil)
}

func (q *Queue) push(item *types.Job) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// TakeTimeout removes and returns the oldest element, blocking up to d
// while the queue is empty. ok is false on timeout. A nil job with
// ok == true is the sentinel.
func (q *Queue) TakeTimeout(d time.Duration) (job *types.Job, ok bool) {
	deadline := time.Now().Add(d)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		// Cond has no timed wait; a one-shot timer broadcasting on the
		// deadline bounds the sleep. Wait registers before releasing the
		// lock, so the broadcast cannot be missed.
		timer := time.AfterFunc(remaining, q.cond.Broadcast)
		q.cond.Wait()
		timer.Stop()
	}

	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the current number of queued elements. The value is a
// best-effort snapshot used only for reporting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
