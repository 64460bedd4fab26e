// internal/worker/pool.go
// Bounded worker pool for concurrent semaphore cycles
//
// LEARN: errgroup.Group with SetLimit is a worker pool without the
// plumbing: Go blocks once the limit is reached (backpressure), Wait joins
// every goroutine, and no job/result channels need closing in the right
// order. Job errors are collected as results instead of cancelling the
// group, because a stress run wants to see every failure, not the first.

package worker

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job represents a unit of work to be processed.
type Job func(ctx context.Context) (any, error)

// Result contains the outcome of a processed job.
type Result struct {
	Value   any           // Result value on success
	Err     error         // Error on failure (including recovered panics)
	JobID   int           // Identifier for ordering/correlation
	Elapsed time.Duration // Time the job ran
}

// Config holds pool configuration.
type Config struct {
	Workers int // Maximum concurrent jobs (default: runtime.NumCPU())
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU()}
}

// Pool runs jobs with at most Workers in flight.
type Pool struct {
	workers int
	group   errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc

	nextID  atomic.Int64
	stopped atomic.Bool

	mu      sync.Mutex
	results []Result
}

// New creates a pool whose jobs run under ctx.
func New(ctx context.Context, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		workers: cfg.Workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	p.group.SetLimit(cfg.Workers)
	return p
}

// Submit adds a job and returns its ID, or -1 once the pool is stopped.
// It blocks while Workers jobs are running.
func (p *Pool) Submit(job Job) int {
	return p.SubmitWithID(job, int(p.nextID.Add(1)-1))
}

// SubmitWithID adds a job with a caller-chosen ID for result correlation.
func (p *Pool) SubmitWithID(job Job, jobID int) int {
	if p.stopped.Load() || p.ctx.Err() != nil {
		return -1
	}

	p.group.Go(func() error {
		start := time.Now()
		value, err := run(p.ctx, job)
		p.collect(Result{Value: value, Err: err, JobID: jobID, Elapsed: time.Since(start)})
		return nil
	})
	return jobID
}

// run executes job, turning a panic into an error so one broken cycle
// does not take the whole run down.
func run(ctx context.Context, job Job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

func (p *Pool) collect(r Result) {
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
}

// Wait blocks until every submitted job has finished and returns all
// results collected so far, ordered by JobID. The pool stays usable.
func (p *Pool) Wait() []Result {
	_ = p.group.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := slices.Clone(p.results)
	slices.SortFunc(out, func(a, b Result) int { return a.JobID - b.JobID })
	return out
}

// Shutdown stops accepting jobs, waits for running ones, and returns
// their results.
func (p *Pool) Shutdown() []Result {
	p.stopped.Store(true)
	results := p.Wait()
	p.cancel()
	return results
}

// ShutdownNow cancels the context seen by running jobs, then waits.
func (p *Pool) ShutdownNow() []Result {
	p.stopped.Store(true)
	p.cancel()
	return p.Wait()
}

// WorkerCount returns the concurrency limit.
func (p *Pool) WorkerCount() int {
	return p.workers
}
