// Package pool implements the concurrent job-execution subsystem: a
// fixed set of long-lived workers consuming the pending-job queue, the
// ingress-facing Submit path and the graceful-shutdown protocol.
//
// Submission order matters: the result file and its lock entry are
// created before the job id is returned to the caller, so any poll for
// an issued id observes at worst "running", never "missing". Shutdown
// flips a monotone flag (new submissions are rejected from then on),
// posts one sentinel per worker so blocked takes wake up, and joins the
// workers in id order. Jobs still queued behind the sentinels are
// abandoned with their "running" file left on disk.
package pool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/le-stats-sportif/webserver/internal/ids"
	"github.com/le-stats-sportif/webserver/internal/logging"
	"github.com/le-stats-sportif/webserver/internal/metrics"
	"github.com/le-stats-sportif/webserver/internal/queue"
	"github.com/le-stats-sportif/webserver/internal/results"
	"github.com/le-stats-sportif/webserver/pkg/types"
)

// ErrShuttingDown rejects submissions after a graceful shutdown has
// been requested.
var ErrShuttingDown = errors.New("shutting down")

// workerCountEnvVar overrides the pool size when set to a positive
// integer.
const workerCountEnvVar = "TP_NUM_OF_THREADS"

// defaultTakeTimeout bounds each blocking take so workers re-check the
// shutdown flag at least once per second.
const defaultTakeTimeout = time.Second

// Dispatcher computes the payload for one job kind. Implementations
// must be safe for concurrent use; the pool treats the computation as a
// pure function and does not interpret its output.
type Dispatcher interface {
	Compute(kind types.JobKind, question, state string) (json.RawMessage, error)
}

// Config carries the pool's collaborators. Workers defaults to the
// TP_NUM_OF_THREADS environment variable, falling back to the hardware
// concurrency.
type Config struct {
	Workers     int
	TakeTimeout time.Duration
	Store       *results.Store
	Dispatcher  Dispatcher
	Log         *logging.Logger    // optional
	Metrics     *metrics.Collector // optional
}

// ShutdownResult is the JSON body of a graceful_shutdown response.
type ShutdownResult struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Pool owns the workers, the queue and the shutdown state.
type Pool struct {
	store       *results.Store
	dispatcher  Dispatcher
	log         *logging.Logger
	metrics     *metrics.Collector
	queue       *queue.Queue
	alloc       *ids.Allocator
	takeTimeout time.Duration

	n          int
	workerDone []chan struct{}

	mu           sync.Mutex // guards the two flags below
	started      bool
	shuttingDown bool
}

// WorkerCountFromEnv resolves the worker count: the env override when
// it parses as a positive integer, otherwise the hardware concurrency.
func WorkerCountFromEnv() int {
	if v := os.Getenv(workerCountEnvVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// New builds a pool; Start must be called before jobs execute.
func New(cfg Config) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = WorkerCountFromEnv()
	}
	takeTimeout := cfg.TakeTimeout
	if takeTimeout <= 0 {
		takeTimeout = defaultTakeTimeout
	}

	return &Pool{
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
		queue:       queue.New(),
		alloc:       ids.NewAllocator(),
		takeTimeout: takeTimeout,
		n:           n,
	}
}

// Start launches the workers. They are created once and never respawn.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	p.started = true

	p.workerDone = make([]chan struct{}, p.n)
	for i := 0; i < p.n; i++ {
		p.workerDone[i] = make(chan struct{})
		go p.runWorker(i)
	}

	p.metrics.SetWorkers(p.n)
	p.logf("started worker pool with %d workers", p.n)
	return nil
}

// Submit admits one job: rejects when shutting down, allocates the id,
// registers the result file and lock entry, then enqueues. The id is
// valid for polling the moment Submit returns.
func (p *Pool) Submit(kind types.JobKind, question, state string) (types.JobID, error) {
	if !kind.Valid() {
		p.logf("ERROR - rejected request for unknown job kind '%s'", kind)
		return 0, fmt.Errorf("unknown job kind %q", kind)
	}

	p.mu.Lock()
	down := p.shuttingDown
	p.mu.Unlock()
	if down {
		p.metrics.RecordRejected()
		p.logf("ERROR - rejected '%s' request: shutting down", kind)
		return 0, ErrShuttingDown
	}

	id := p.alloc.Next()
	if err := p.store.Register(id); err != nil {
		p.logf("ERROR - failed to register job %d: %v", id, err)
		return 0, err
	}

	p.queue.Put(&types.Job{ID: id, Kind: kind, Question: question, State: state})
	p.metrics.RecordSubmitted()
	p.metrics.SetPending(p.queue.Len())
	p.logf("registered job %d of type '%s'", id, kind)
	return id, nil
}

// runWorker is the worker main loop. Blocking takes are bounded so the
// shutdown flag is re-checked at least once per takeTimeout.
func (p *Pool) runWorker(idx int) {
	defer close(p.workerDone[idx])

	for {
		if p.IsShuttingDown() {
			p.logf("worker %d stopping: shutdown flag set", idx)
			return
		}

		job, ok := p.queue.TakeTimeout(p.takeTimeout)
		if !ok {
			continue
		}
		if job == nil {
			p.logf("worker %d stopping: received sentinel", idx)
			return
		}

		p.metrics.SetPending(p.queue.Len())
		start := time.Now()
		payload, failed := p.compute(job)

		if err := p.store.Finalize(job.ID, payload); err != nil {
			// The file may stay "running"; the worker itself survives.
			p.logf("ERROR - failed to finalize job %d: %v", job.ID, err)
			continue
		}
		if failed {
			p.metrics.RecordFailed()
		} else {
			p.metrics.RecordCompleted(time.Since(start).Seconds())
		}
		p.logf("computed job %d", job.ID)
	}
}

// compute invokes the dispatcher, absorbing errors and panics into an
// error payload so the result file still reaches its terminal state.
func (p *Pool) compute(job *types.Job) (payload json.RawMessage, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logf("ERROR - panic computing job %d: %v", job.ID, r)
			payload = errorPayload(fmt.Sprintf("panic: %v", r))
			failed = true
		}
	}()

	raw, err := p.dispatcher.Compute(job.Kind, job.Question, job.State)
	if err != nil {
		p.logf("ERROR - computing job %d failed: %v", job.ID, err)
		return errorPayload(err.Error()), true
	}
	return raw, false
}

func errorPayload(reason string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": reason})
	return raw
}

// Shutdown runs the quiesce protocol. The first call stops the pool;
// repeats are idempotent and report that the pool is already down.
// In-flight computations are not interrupted.
func (p *Pool) Shutdown() ShutdownResult {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		p.logf("graceful shutdown requested again: already shut down")
		return ShutdownResult{Status: "done", Reason: "already shut down"}
	}
	p.shuttingDown = true
	started := p.started
	p.mu.Unlock()

	p.logf("graceful shutdown requested, stopping %d workers", p.n)
	if started {
		for i := 0; i < p.n; i++ {
			p.queue.PutSentinel()
		}
		for i, done := range p.workerDone {
			<-done
			p.logf("worker %d joined", i)
		}
	}
	p.logf("graceful shutdown complete")
	return ShutdownResult{Status: "done"}
}

// IsShuttingDown reports whether a shutdown was requested.
func (p *Pool) IsShuttingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuttingDown
}

// NumPending returns a best-effort snapshot of the queue depth.
func (p *Pool) NumPending() int {
	return p.queue.Len()
}

// LastIssued returns the largest job id handed out so far.
func (p *Pool) LastIssued() types.JobID {
	return p.alloc.LastIssued()
}

// WorkerCount returns the configured pool size.
func (p *Pool) WorkerCount() int {
	return p.n
}

func (p *Pool) logf(format string, args ...interface{}) {
	if p.log == nil {
		return
	}
	p.log.Printf(format, args...)
}
