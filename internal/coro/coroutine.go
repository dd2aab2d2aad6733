// Package coro implements host threads as goroutine-backed coroutines.
//
// A Coroutine runs its function on a dedicated goroutine, but control is
// handed back and forth over channels so that exactly one of the resumer and
// the coroutine executes at any instant. This gives Go functions the
// stackful yield semantics a scripting VM provides for its threads.
package coro

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/me/taskhost/internal/host"
)

// Func is the body of a Coroutine. args are the values passed to the first
// Resume; the returned values are delivered by the final Resume.
type Func func(c *Coroutine, args []any) ([]any, error)

type state int

const (
	stateSuspended state = iota
	stateRunning
	stateDead
)

func (s state) String() string {
	switch s {
	case stateSuspended:
		return "suspended"
	case stateRunning:
		return "running"
	default:
		return "dead"
	}
}

// transfer is what the coroutine hands back to its resumer.
type transfer struct {
	values []any
	done   bool
	failed bool
	msg    string
}

// unwind is panicked inside a closed coroutine to unwind its stack.
type unwind struct{}

// Coroutine is a host.Thread backed by a goroutine.
type Coroutine struct {
	fn       Func
	resumeCh chan []any
	yieldCh  chan transfer

	mu       sync.Mutex
	state    state
	started  bool
	closed   bool
	userdata uint64
	hasData  bool
}

var _ host.Thread = (*Coroutine)(nil)

// New creates a suspended coroutine that will run fn on first Resume.
func New(fn Func) *Coroutine {
	return &Coroutine{
		fn:       fn,
		resumeCh: make(chan []any),
		yieldCh:  make(chan transfer),
	}
}

// Resume runs the coroutine until it yields, returns, or fails.
func (c *Coroutine) Resume(args []any) host.Result {
	c.mu.Lock()
	switch c.state {
	case stateDead:
		c.mu.Unlock()
		return host.Result{Status: host.Failed, Message: "cannot resume dead coroutine"}
	case stateRunning:
		c.mu.Unlock()
		return host.Result{Status: host.Failed, Message: "cannot resume non-suspended coroutine"}
	}
	c.state = stateRunning
	first := !c.started
	c.started = true
	c.mu.Unlock()

	if first {
		go c.main(args)
	} else {
		c.resumeCh <- args
	}
	t := <-c.yieldCh

	c.mu.Lock()
	switch {
	case t.done:
		c.state = stateDead
	case c.closed:
		// Closed by another goroutine while running; unwind it now.
		c.state = stateDead
		close(c.resumeCh)
	default:
		c.state = stateSuspended
	}
	c.mu.Unlock()

	switch {
	case t.failed:
		return host.Result{Status: host.Failed, Message: t.msg}
	case t.done:
		return host.Result{Status: host.Completed, Values: t.values}
	default:
		return host.Result{Status: host.Suspended, Values: t.values}
	}
}

func (c *Coroutine) main(args []any) {
	var (
		values []any
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(unwind); ok {
				return
			}
			c.yieldCh <- transfer{
				done:   true,
				failed: true,
				msg:    fmt.Sprintf("panic: %v\n%s", r, debug.Stack()),
			}
			return
		}
		if err != nil {
			c.yieldCh <- transfer{done: true, failed: true, msg: err.Error()}
			return
		}
		c.yieldCh <- transfer{done: true, values: values}
	}()
	values, err = c.fn(c, args)
}

// Yield suspends the coroutine and returns the arguments of the next Resume.
func (c *Coroutine) Yield() []any {
	return c.YieldValues()
}

// YieldValues suspends the coroutine, handing values to the resumer.
// It must be called from the coroutine's own goroutine.
func (c *Coroutine) YieldValues(values ...any) []any {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		// Closed while running: release the resumer, then unwind.
		c.yieldCh <- transfer{done: true}
		panic(unwind{})
	}

	c.yieldCh <- transfer{values: values}
	args, ok := <-c.resumeCh
	if !ok {
		panic(unwind{})
	}
	return args
}

// Close kills the coroutine. A suspended coroutine's goroutine is unwound
// immediately; a running one finishes at its next yield.
func (c *Coroutine) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	switch c.state {
	case stateSuspended:
		c.state = stateDead
		if c.started {
			close(c.resumeCh)
		}
	case stateRunning:
		// The resumer is blocked on yieldCh; YieldValues hands control back.
	}
}

// Status returns "suspended", "running" or "dead".
func (c *Coroutine) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}

// SetUserdata implements host.Thread.
func (c *Coroutine) SetUserdata(id uint64) {
	c.mu.Lock()
	c.userdata, c.hasData = id, true
	c.mu.Unlock()
}

// Userdata implements host.Thread.
func (c *Coroutine) Userdata() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userdata, c.hasData
}

// ClearUserdata implements host.Thread.
func (c *Coroutine) ClearUserdata() {
	c.mu.Lock()
	c.userdata, c.hasData = 0, false
	c.mu.Unlock()
}

// Identity implements host.Thread.
func (c *Coroutine) Identity() string {
	return fmt.Sprintf("thread: %p", c)
}

// Runtime creates Coroutines. It accepts Func values and plain functions
// with the same signature.
type Runtime struct{}

var _ host.Runtime = (*Runtime)(nil)

// NewRuntime returns a coroutine runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// NewThread implements host.Runtime.
func (r *Runtime) NewThread(fn any) (host.Thread, error) {
	switch f := fn.(type) {
	case Func:
		if f == nil {
			break
		}
		return New(f), nil
	case func(*Coroutine, []any) ([]any, error):
		if f == nil {
			break
		}
		return New(f), nil
	}
	return nil, fmt.Errorf("%w: got %T", host.ErrNotCallable, fn)
}
