package jshost

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/me/taskhost/internal/host"
)

// Thread runs one JS function as a host thread. Generator functions
// suspend at each `yield` and continue with the next Resume's value;
// ordinary functions run to completion on their first Resume.
type Thread struct {
	h     *Host
	fn    goja.Callable
	isGen bool

	// Touched only on the driver goroutine.
	gen    *goja.Object
	next   goja.Callable
	handle *goja.Object

	mu       sync.Mutex
	started  bool
	running  bool
	dead     bool
	userdata uint64
	hasData  bool
}

var _ host.Thread = (*Thread)(nil)

// Resume implements host.Thread.
func (t *Thread) Resume(args []any) host.Result {
	t.mu.Lock()
	switch {
	case t.dead:
		t.mu.Unlock()
		return host.Result{Status: host.Failed, Message: "cannot resume dead thread"}
	case t.running:
		t.mu.Unlock()
		return host.Result{Status: host.Failed, Message: "cannot resume non-suspended thread"}
	}
	t.running = true
	first := !t.started
	t.started = true
	t.mu.Unlock()

	t.h.push(t)
	res := t.run(first, args)
	t.h.pop()

	t.mu.Lock()
	t.running = false
	if res.Status != host.Suspended {
		t.dead = true
	}
	t.mu.Unlock()
	return res
}

func (t *Thread) run(first bool, args []any) host.Result {
	if first {
		v, err := t.fn(goja.Undefined(), t.h.toValues(args)...)
		if err != nil {
			return failed(err)
		}
		if !t.isGen {
			return host.Result{Status: host.Completed, Values: []any{v.Export()}}
		}
		t.gen = v.ToObject(t.h.vm)
		next, ok := goja.AssertFunction(t.gen.Get("next"))
		if !ok {
			return host.Result{Status: host.Failed, Message: "generator has no next method"}
		}
		t.next = next
		return t.step(goja.Undefined())
	}
	return t.step(t.h.resumeValue(args))
}

// step advances the generator, delivering v as the value of the pending
// yield expression.
func (t *Thread) step(v goja.Value) host.Result {
	r, err := t.next(t.gen, v)
	if err != nil {
		return failed(err)
	}
	obj := r.ToObject(t.h.vm)
	value := obj.Get("value")
	var values []any
	if value != nil && !goja.IsUndefined(value) {
		values = []any{value.Export()}
	}
	if obj.Get("done").ToBoolean() {
		return host.Result{Status: host.Completed, Values: values}
	}
	return host.Result{Status: host.Suspended, Values: values}
}

func failed(err error) host.Result {
	return host.Result{Status: host.Failed, Message: errorMessage(err)}
}

// errorMessage renders a JS exception as "Name: message" without the stack.
func errorMessage(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if v := exc.Value(); v != nil {
			return v.String()
		}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("interrupted: %v", interrupted.Value())
	}
	return err.Error()
}

// Yield implements host.Thread. JS threads suspend at their own `yield`
// expression, so Yield only acknowledges the request.
func (t *Thread) Yield() []any { return nil }

// Close implements host.Thread. It never touches the VM, so it is safe from
// worker goroutines; the generator is simply never advanced again.
func (t *Thread) Close() {
	t.mu.Lock()
	t.dead = true
	t.mu.Unlock()
}

// Dead reports whether the thread finished or was closed.
func (t *Thread) Dead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dead
}

// SetUserdata implements host.Thread.
func (t *Thread) SetUserdata(id uint64) {
	t.mu.Lock()
	t.userdata, t.hasData = id, true
	t.mu.Unlock()
}

// Userdata implements host.Thread.
func (t *Thread) Userdata() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userdata, t.hasData
}

// ClearUserdata implements host.Thread.
func (t *Thread) ClearUserdata() {
	t.mu.Lock()
	t.userdata, t.hasData = 0, false
	t.mu.Unlock()
}

// Identity implements host.Thread.
func (t *Thread) Identity() string {
	return fmt.Sprintf("thread: %p", t)
}
