// Package executor provides the worker pools that run blocking work for the
// scheduler's worker bridge, off the driver goroutine.
package executor

import "context"

// Job is a unit of background work.
type Job func(ctx context.Context)

// Executor is a pluggable backend that runs Jobs.
type Executor interface {
	// Type returns the executor type identifier.
	Type() string

	// Go hands job to the executor. It never blocks the caller for the
	// duration of the job. If ctx is cancelled before the job starts, the
	// job still runs with the cancelled context so it can report failure.
	Go(ctx context.Context, job Job)
}
