package executor

import "context"

// TypeInline identifies the synchronous executor.
const TypeInline = "inline"

// InlineExecutor runs jobs synchronously on the caller's goroutine.
// It makes worker-bridge behaviour deterministic in tests.
type InlineExecutor struct{}

// NewInlineExecutor returns an InlineExecutor.
func NewInlineExecutor() *InlineExecutor { return &InlineExecutor{} }

// Type implements Executor.
func (InlineExecutor) Type() string { return TypeInline }

// Go implements Executor.
func (InlineExecutor) Go(ctx context.Context, job Job) { job(ctx) }

// Deferred collects jobs and runs them only when Flush is called, so tests
// can decide exactly when background work completes.
type Deferred struct {
	jobs []deferredJob
}

type deferredJob struct {
	ctx context.Context
	job Job
}

// TypeDeferred identifies the manually flushed executor.
const TypeDeferred = "deferred"

// Type implements Executor.
func (d *Deferred) Type() string { return TypeDeferred }

// Go implements Executor.
func (d *Deferred) Go(ctx context.Context, job Job) {
	d.jobs = append(d.jobs, deferredJob{ctx: ctx, job: job})
}

// Len returns the number of jobs not yet flushed.
func (d *Deferred) Len() int { return len(d.jobs) }

// Flush runs all collected jobs in submission order and returns how many ran.
func (d *Deferred) Flush() int {
	jobs := d.jobs
	d.jobs = nil
	for _, j := range jobs {
		j.job(j.ctx)
	}
	return len(jobs)
}
