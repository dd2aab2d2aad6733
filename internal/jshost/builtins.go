package jshost

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

func (h *Host) installBuiltins() error {
	lib := h.vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"spawn":   h.taskSpawn,
		"defer":   h.taskDefer,
		"delay":   h.taskDelay,
		"wait":    h.taskWait,
		"cancel":  h.taskCancel,
		"status":  h.taskStatus,
		"current": h.taskCurrent,
	} {
		if err := lib.Set(name, fn); err != nil {
			return err
		}
	}
	if err := h.vm.Set("task", lib); err != nil {
		return err
	}

	console := h.vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"log":   h.consoleLog(h.logger.Info),
		"info":  h.consoleLog(h.logger.Info),
		"warn":  h.consoleLog(h.logger.Warn),
		"error": h.consoleLog(h.logger.Error),
		"debug": h.consoleLog(h.logger.Debug),
	} {
		if err := console.Set(name, fn); err != nil {
			return err
		}
	}
	if err := h.vm.Set("console", console); err != nil {
		return err
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"print":    h.print,
		"readFile": h.readFile,
		"fetch":    h.fetch,
		"glob":     h.glob,
	} {
		if err := h.vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) taskSpawn(call goja.FunctionCall) goja.Value {
	target := h.target("spawn", call.Argument(0))
	th, err := h.sched.Spawn(h.current(), target, h.rest(call, 1)...)
	if err != nil {
		h.throw(err)
	}
	return h.handle(th.(*Thread))
}

func (h *Host) taskDefer(call goja.FunctionCall) goja.Value {
	target := h.target("defer", call.Argument(0))
	th, err := h.sched.Defer(h.current(), target, h.rest(call, 1)...)
	if err != nil {
		h.throw(err)
	}
	return h.handle(th.(*Thread))
}

func (h *Host) taskDelay(call goja.FunctionCall) goja.Value {
	d := h.seconds("delay", call.Argument(0), false)
	target := h.target("delay", call.Argument(1))
	th, err := h.sched.Delay(h.current(), d, target, h.rest(call, 2)...)
	if err != nil {
		h.throw(err)
	}
	return h.handle(th.(*Thread))
}

// taskWait queues the calling thread; the script yields to suspend and
// receives the elapsed seconds as the yield's value.
func (h *Host) taskWait(call goja.FunctionCall) goja.Value {
	d := h.seconds("wait", call.Argument(0), true)
	th := h.running("wait")
	if _, err := h.sched.Wait(th, d); err != nil {
		h.throw(err)
	}
	return goja.Undefined()
}

func (h *Host) taskCancel(call goja.FunctionCall) goja.Value {
	t := h.threadArg("cancel", call.Argument(0))
	if err := h.sched.Cancel(t); err != nil {
		h.throw(err)
	}
	return goja.Undefined()
}

func (h *Host) taskStatus(call goja.FunctionCall) goja.Value {
	t := h.threadArg("status", call.Argument(0))
	st, err := h.sched.Status(t)
	if err != nil {
		h.throw(err)
	}
	return h.vm.ToValue(st.String())
}

// taskCurrent returns the handle of the running thread, or null at top level.
func (h *Host) taskCurrent(goja.FunctionCall) goja.Value {
	th := h.current()
	if th == nil {
		return goja.Null()
	}
	return h.handle(th.(*Thread))
}

func (h *Host) print(call goja.FunctionCall) goja.Value {
	fmt.Fprintln(h.cfg.Output, joinArgs(call.Arguments))
	return goja.Undefined()
}

func (h *Host) consoleLog(log func(msg string, args ...any)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		attrs := []any{"source", "console"}
		if th := h.current(); th != nil {
			attrs = append(attrs, "thread", th.Identity())
		}
		log(joinArgs(call.Arguments), attrs...)
		return goja.Undefined()
	}
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// target converts a spawn/defer/delay target: a thread handle or a function.
func (h *Host) target(op string, v goja.Value) any {
	if t, ok := h.threadOf(v); ok {
		return host.Thread(t)
	}
	if _, ok := goja.AssertFunction(v); ok {
		return v
	}
	panic(h.vm.NewTypeError(fmt.Sprintf("invalid argument #1 to '%s' (function or thread expected, got %s)", op, typeName(v))))
}

func (h *Host) threadArg(op string, v goja.Value) host.Thread {
	t, ok := h.threadOf(v)
	if !ok {
		panic(h.vm.NewTypeError(fmt.Sprintf("invalid argument #1 to '%s' (thread expected, got %s)", op, typeName(v))))
	}
	return t
}

// running returns the thread executing the current builtin.
func (h *Host) running(op string) host.Thread {
	th := h.current()
	if th == nil {
		h.throwError(fmt.Sprintf("%s: must be called from a task", op))
	}
	return th
}

func (h *Host) rest(call goja.FunctionCall, from int) []any {
	if len(call.Arguments) <= from {
		return nil
	}
	out := make([]any, 0, len(call.Arguments)-from)
	for _, a := range call.Arguments[from:] {
		out = append(out, a)
	}
	return out
}

// seconds validates a duration argument in seconds.
func (h *Host) seconds(op string, v goja.Value, optional bool) time.Duration {
	if optional && (v == nil || goja.IsUndefined(v)) {
		return 0
	}
	var f float64
	switch n := v.Export().(type) {
	case int64:
		f = float64(n)
	case float64:
		f = n
	default:
		panic(h.vm.NewTypeError(fmt.Sprintf("invalid argument #1 to '%s' (number expected, got %s)", op, typeName(v))))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		h.throwNamed("RangeError", fmt.Sprintf("invalid argument #1 to '%s' (seconds must be a finite number >= 0)", op))
	}
	if f >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f * float64(time.Second))
}

// throw raises a scheduler error in JS: argument errors as TypeError,
// everything else as Error.
func (h *Host) throw(err error) {
	if model.IsArgumentError(err) {
		panic(h.vm.NewTypeError(err.Error()))
	}
	h.throwError(err.Error())
}

func (h *Host) throwError(msg string) {
	h.throwNamed("Error", msg)
}

func (h *Host) throwNamed(ctor, msg string) {
	obj, err := h.vm.New(h.vm.Get(ctor), h.vm.ToValue(msg))
	if err != nil {
		panic(h.vm.NewGoError(fmt.Errorf("%s", msg)))
	}
	panic(obj)
}
