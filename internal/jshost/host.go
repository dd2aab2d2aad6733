// Package jshost runs JavaScript tasks on the scheduler using goja.
//
// Every task is a JS function. Generator functions are the suspendable
// kind: the task library's suspending calls (task.wait, readFile, fetch,
// glob) schedule the resumption and the script then hands control back with
// `yield`, receiving the resume value as the result of the yield
// expression:
//
//	task.spawn(function* () {
//		const dt = yield task.wait(0.5);
//		const text = yield readFile("notes.txt");
//	});
//
// A script file's top level runs as a generator, so it may yield too.
// All VM access happens on the driver goroutine; worker jobs only produce
// Go values, converted to JS when the thread resumes.
package jshost

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/internal/scheduler"
	"github.com/me/taskhost/pkg/model"
)

// Config holds JS host settings.
type Config struct {
	// FetchTimeout bounds each fetch call.
	FetchTimeout time.Duration
	// BaseDir resolves relative readFile and glob paths.
	BaseDir string
	// Output receives print() lines.
	Output io.Writer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 30 * time.Second,
		BaseDir:      ".",
		Output:       os.Stdout,
	}
}

// Host is a goja runtime bound to a scheduler. It implements host.Runtime.
type Host struct {
	vm       *goja.Runtime
	sched    *scheduler.Scheduler
	cfg      Config
	logger   *slog.Logger
	fetcher  *fetcher
	genProto *goja.Object
	threadID *goja.Symbol

	mu    sync.Mutex
	stack []*Thread
}

var _ host.Runtime = (*Host)(nil)

// threadRef is stored on JS thread handles under a Go-only symbol. It has
// no exported members, so scripts cannot reach the Thread through it.
type threadRef struct{ t *Thread }

// New creates a JS host and the scheduler that drives it. opts configure
// the scheduler.
func New(cfg Config, logger *slog.Logger, opts ...scheduler.Option) (*Host, error) {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "."
	}
	h := &Host{
		vm:       goja.New(),
		cfg:      cfg,
		logger:   logger.With("component", "jshost"),
		fetcher:  newFetcher(cfg.FetchTimeout),
		threadID: goja.NewSymbol("thread"),
	}
	h.sched = scheduler.New(h, append([]scheduler.Option{scheduler.WithLogger(logger)}, opts...)...)

	proto, err := h.vm.RunString("Object.getPrototypeOf(function* () {})")
	if err != nil {
		return nil, fmt.Errorf("probe generator prototype: %w", err)
	}
	h.genProto = proto.ToObject(h.vm)

	if err := h.installBuiltins(); err != nil {
		return nil, fmt.Errorf("install builtins: %w", err)
	}
	return h, nil
}

// Scheduler returns the scheduler that drives this host.
func (h *Host) Scheduler() *scheduler.Scheduler {
	return h.sched
}

// NewThread implements host.Runtime. fn must be a callable JS value.
func (h *Host) NewThread(fn any) (host.Thread, error) {
	v, ok := fn.(goja.Value)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", host.ErrNotCallable, fn)
	}
	call, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", host.ErrNotCallable, typeName(v))
	}
	t := &Thread{h: h, fn: call}
	if obj, ok := v.(*goja.Object); ok {
		if proto := obj.Prototype(); proto != nil && proto.SameAs(h.genProto) {
			t.isGen = true
		}
	}
	return t, nil
}

// RunScript compiles src as the body of a generator and spawns it as a
// root task owned by name. Compile errors are returned; runtime errors are
// reported as outcomes.
func (h *Host) RunScript(name, src string) (host.Thread, error) {
	prog, err := goja.Compile(name, "(function* () {"+src+"\n})", false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	fn, err := h.vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	th, err := h.sched.Create(nil, fn, scheduler.Owner(name))
	if err != nil {
		return nil, err
	}
	if _, err := h.sched.Spawn(nil, th); err != nil {
		return nil, err
	}
	h.logger.Debug("script started", "script", name, "thread", th.Identity())
	return th, nil
}

// RunFile reads path and runs it with RunScript.
func (h *Host) RunFile(path string) (host.Thread, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return h.RunScript(path, string(src))
}

// Interrupt aborts the JS code currently running, if any.
func (h *Host) Interrupt(reason string) {
	h.vm.Interrupt(reason)
}

func (h *Host) push(t *Thread) {
	h.mu.Lock()
	h.stack = append(h.stack, t)
	h.mu.Unlock()
}

func (h *Host) pop() {
	h.mu.Lock()
	h.stack = h.stack[:len(h.stack)-1]
	h.mu.Unlock()
}

// current returns the innermost running thread, or nil at top level.
func (h *Host) current() host.Thread {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 0 {
		return nil
	}
	return h.stack[len(h.stack)-1]
}

// handle returns the JS object that represents t to scripts.
func (h *Host) handle(t *Thread) *goja.Object {
	if t.handle != nil {
		return t.handle
	}
	obj := h.vm.NewObject()
	_ = obj.DefineDataPropertySymbol(h.threadID, h.vm.ToValue(threadRef{t}), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = obj.Set("identity", t.Identity())
	_ = obj.Set("toString", func(goja.FunctionCall) goja.Value {
		return h.vm.ToValue(t.Identity())
	})
	t.handle = obj
	return obj
}

// threadOf returns the Thread behind a JS handle.
func (h *Host) threadOf(v goja.Value) (*Thread, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	ref := obj.GetSymbol(h.threadID)
	if ref == nil || goja.IsUndefined(ref) {
		return nil, false
	}
	r, ok := ref.Export().(threadRef)
	if !ok || r.t.h != h {
		return nil, false
	}
	return r.t, true
}

// toValue converts a scheduler value to JS. Durations become seconds.
func (h *Host) toValue(v any) goja.Value {
	switch x := v.(type) {
	case goja.Value:
		return x
	case time.Duration:
		return h.vm.ToValue(x.Seconds())
	case *Thread:
		return h.handle(x)
	case model.TaskStatus:
		return h.vm.ToValue(string(x))
	}
	return h.vm.ToValue(v)
}

func (h *Host) toValues(args []any) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = h.toValue(a)
	}
	return out
}

// resumeValue folds resume arguments into the single value a generator
// receives: undefined, the value itself, or an array.
func (h *Host) resumeValue(args []any) goja.Value {
	switch len(args) {
	case 0:
		return goja.Undefined()
	case 1:
		return h.toValue(args[0])
	}
	items := make([]any, len(args))
	for i, a := range args {
		items[i] = h.toValue(a)
	}
	return h.vm.NewArray(items...)
}

func typeName(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if _, ok := v.(*goja.Object); ok {
		return "object"
	}
	switch v.Export().(type) {
	case int64, float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	return "value"
}
