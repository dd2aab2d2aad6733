// Package host defines the boundary between the scheduler and a scripting
// runtime. The scheduler never inspects runtime state beyond these calls.
package host

import (
	"errors"
	"fmt"
)

// ResumeStatus classifies the result of resuming a Thread.
type ResumeStatus int

const (
	// Completed means the thread's body returned normally.
	Completed ResumeStatus = iota
	// Suspended means the thread yielded and can be resumed again.
	Suspended
	// Failed means the thread raised an error; Result.Message describes it.
	Failed
)

func (s ResumeStatus) String() string {
	switch s {
	case Completed:
		return "completed"
	case Suspended:
		return "suspended"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("ResumeStatus(%d)", int(s))
}

// Result is returned by Thread.Resume.
type Result struct {
	Status  ResumeStatus
	Values  []any
	Message string
}

// Thread is a resumable execution context owned by a host runtime.
//
// Resume must only be called by the scheduler's driver goroutine (or a
// primitive running on it). No two Resume calls on any threads of the same
// runtime overlap.
type Thread interface {
	// Resume runs the thread with args until it completes, suspends or fails.
	Resume(args []any) Result

	// Yield suspends the calling thread. It must be called from inside the
	// thread's own execution. Stackful hosts block until the next Resume and
	// return its arguments. Continuation-based hosts return nil at once and
	// deliver the next Resume's arguments through their own continuation.
	Yield() []any

	// SetUserdata attaches the scheduler's opaque task id to the thread.
	SetUserdata(id uint64)
	// Userdata returns the attached id, if any.
	Userdata() (uint64, bool)
	// ClearUserdata detaches the id.
	ClearUserdata()

	// Close unlinks the thread from the runtime. A suspended thread will
	// never be resumed again and releases its resources.
	Close()

	// Identity is a printable identifier derived from the thread's address.
	Identity() string
}

// Runtime creates threads.
type Runtime interface {
	// NewThread creates a suspended thread that will call fn on first
	// Resume. It returns an error if fn is not a function the runtime can run.
	NewThread(fn any) (Thread, error)
}

// ErrNotCallable is returned by Runtime.NewThread for values that cannot
// start a thread.
var ErrNotCallable = errors.New("value is not callable")
