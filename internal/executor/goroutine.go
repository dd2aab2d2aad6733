package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// TypeGoroutine identifies the detached goroutine executor.
const TypeGoroutine = "goroutine"

// slots bounds how many jobs execute at once. A nil *slots is unbounded.
type slots chan struct{}

func newSlots(n int) slots {
	if n <= 0 {
		return nil
	}
	return make(slots, n)
}

// take claims a slot, giving up when ctx is done.
func (s slots) take(ctx context.Context) bool {
	if s == nil {
		return true
	}
	select {
	case s <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s slots) give() {
	if s != nil {
		<-s
	}
}

// GoroutineExecutor runs each job on its own detached goroutine, with at
// most maxWorkers jobs executing at once.
type GoroutineExecutor struct {
	slots   slots
	logger  *slog.Logger
	wg      sync.WaitGroup
	pending atomic.Int64
	running atomic.Int64
}

// NewGoroutineExecutor creates an executor. maxWorkers <= 0 means unlimited.
func NewGoroutineExecutor(maxWorkers int, logger *slog.Logger) *GoroutineExecutor {
	return &GoroutineExecutor{
		slots:  newSlots(maxWorkers),
		logger: logger.With("component", "executor", "type", TypeGoroutine),
	}
}

// Type implements Executor.
func (e *GoroutineExecutor) Type() string { return TypeGoroutine }

// Go implements Executor. A job whose context is cancelled while it waits
// for a slot runs at once, unthrottled, so it can report the cancellation.
func (e *GoroutineExecutor) Go(ctx context.Context, job Job) {
	e.wg.Add(1)
	e.pending.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.pending.Add(-1)

		if e.slots.take(ctx) {
			defer e.slots.give()
		} else {
			e.logger.Debug("job starting after cancellation", "error", ctx.Err())
		}
		e.running.Add(1)
		defer e.running.Add(-1)
		job(ctx)
	}()
}

// MaxWorkers returns the concurrency limit, or 0 if unlimited.
func (e *GoroutineExecutor) MaxWorkers() int {
	return cap(e.slots)
}

// Pending returns the number of jobs waiting for a slot or running.
func (e *GoroutineExecutor) Pending() int {
	return int(e.pending.Load())
}

// Running returns the number of jobs currently executing.
func (e *GoroutineExecutor) Running() int {
	return int(e.running.Load())
}

// Wait blocks until every job handed to Go so far has returned, or ctx is done.
func (e *GoroutineExecutor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
