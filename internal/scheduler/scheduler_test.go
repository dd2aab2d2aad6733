package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/taskhost/internal/coro"
	"github.com/me/taskhost/internal/executor"
	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSetup returns a scheduler on the coroutine runtime with a manual
// clock and a synchronous executor.
func testSetup(t *testing.T, opts ...Option) (*Scheduler, *ManualClock) {
	t.Helper()
	clock := NewManualClock(epoch)
	base := []Option{
		WithClock(clock),
		WithExecutor(executor.NewInlineExecutor()),
		WithLogger(newTestLogger()),
	}
	s := New(coro.NewRuntime(), append(base, opts...)...)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// body adapts a coroutine body for Spawn/Defer/Delay targets.
func body(fn func(c *coro.Coroutine, args []any) error) coro.Func {
	return func(c *coro.Coroutine, args []any) ([]any, error) {
		return nil, fn(c, args)
	}
}

func outcomesOf(outcomes []model.Outcome, kind model.OutcomeKind) []model.Outcome {
	var out []model.Outcome
	for _, o := range outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func mustStatus(t *testing.T, s *Scheduler, th host.Thread) model.TaskStatus {
	t.Helper()
	st, err := s.Status(th)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return st
}

func TestSpawn_RunsInlineUntilFirstSuspension(t *testing.T) {
	s, _ := testSetup(t)

	var log []string
	th, err := s.Spawn(nil, body(func(c *coro.Coroutine, args []any) error {
		log = append(log, "start:"+args[0].(string))
		if _, err := s.Wait(c, 0); err != nil {
			return err
		}
		log = append(log, "resumed")
		return nil
	}), "x")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if len(log) != 1 || log[0] != "start:x" {
		t.Fatalf("log after Spawn = %v, want [start:x]", log)
	}
	if got := mustStatus(t, s, th); got != model.TaskStatusWaiting {
		t.Errorf("status = %q, want waiting", got)
	}

	s.Run()
	if len(log) != 2 {
		t.Errorf("log after Run = %v, want resumed", log)
	}
	if got := mustStatus(t, s, th); got != model.TaskStatusKilled {
		t.Errorf("status after completion = %q, want killed", got)
	}
}

func TestSpawn_NestedFromRunningTask(t *testing.T) {
	s, _ := testSetup(t)

	var order []string
	_, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
		order = append(order, "parent-before")
		if _, err := s.Spawn(c, body(func(c *coro.Coroutine, _ []any) error {
			order = append(order, "child")
			return nil
		})); err != nil {
			return err
		}
		order = append(order, "parent-after")
		return nil
	}))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	want := []string{"parent-before", "child", "parent-after"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSpawn_ResumesYieldingThread(t *testing.T) {
	s, _ := testSetup(t)

	var got []any
	th, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
		got = c.Yield()
		return nil
	}))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if st := mustStatus(t, s, th); st != model.TaskStatusYielding {
		t.Fatalf("status = %q, want yielding", st)
	}

	if _, err := s.Spawn(nil, th, 1, 2); err != nil {
		t.Fatalf("Spawn(thread): %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("resume args = %v, want [1 2]", got)
	}
	if st := mustStatus(t, s, th); st != model.TaskStatusKilled {
		t.Errorf("status = %q, want killed", st)
	}
}

func TestSpawn_QueuedThreadIsLifecycleError(t *testing.T) {
	s, _ := testSetup(t)

	th, err := s.Delay(nil, time.Second, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}

	for name, call := range map[string]func() error{
		"spawn": func() error { _, err := s.Spawn(nil, th); return err },
		"defer": func() error { _, err := s.Defer(nil, th); return err },
		"delay": func() error { _, err := s.Delay(nil, 0, th); return err },
	} {
		if err := call(); !model.IsLifecycleError(err) {
			t.Errorf("%s on delaying thread: err = %v, want lifecycle error", name, err)
		}
	}
}

func TestSpawn_ArgumentErrors(t *testing.T) {
	s, _ := testSetup(t)

	if _, err := s.Spawn(nil, "not a function"); !model.IsArgumentError(err) {
		t.Errorf("Spawn(string) err = %v, want argument error", err)
	}
	if _, err := s.Spawn(nil, nil); !model.IsArgumentError(err) {
		t.Errorf("Spawn(nil) err = %v, want argument error", err)
	}
	if _, err := s.Delay(nil, -time.Second, body(func(*coro.Coroutine, []any) error { return nil })); !model.IsArgumentError(err) {
		t.Errorf("Delay(-1s) err = %v, want argument error", err)
	}
	if s.Len() != 0 {
		t.Errorf("argument errors created %d tasks", s.Len())
	}
}

func TestSpawn_KilledThreadIsLifecycleError(t *testing.T) {
	s, _ := testSetup(t)

	th, err := s.Spawn(nil, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := s.Spawn(nil, th); !model.IsLifecycleError(err) {
		t.Errorf("Spawn(dead thread) err = %v, want lifecycle error", err)
	}
}

func TestSpawn_FailureReportedAsOutcome(t *testing.T) {
	s, _ := testSetup(t)

	th, err := s.Spawn(nil, body(func(*coro.Coroutine, []any) error {
		return errors.New("attempt to index nil")
	}))
	if err != nil {
		t.Fatalf("Spawn returned the body's error: %v", err)
	}

	outcomes := s.Run()
	failed := outcomesOf(outcomes, model.OutcomeFailed)
	if len(failed) != 1 || failed[0].Message != "attempt to index nil" || failed[0].Cause != model.CauseErrored {
		t.Fatalf("failed outcomes = %+v", failed)
	}
	killed := outcomesOf(outcomes, model.OutcomeKilled)
	if len(killed) != 1 || killed[0].Cause != model.CauseErrored {
		t.Errorf("killed outcomes = %+v", killed)
	}
	if failed[0].Identity != th.Identity() {
		t.Errorf("Identity = %q, want %q", failed[0].Identity, th.Identity())
	}
}

func TestCreate_InheritsOwnerAndCapability(t *testing.T) {
	s, _ := testSetup(t, WithCapability(model.CapabilityLocalUser), WithOwner("root.js"))

	parent, err := s.Create(nil, body(func(*coro.Coroutine, []any) error { return nil }),
		Owner("plugin"), WithTaskCapability(model.CapabilityPluginSecurity))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	child, err := s.Create(parent, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	orphan, err := s.Create(nil, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Create orphan: %v", err)
	}

	info, _ := s.Lookup(child)
	if info.Owner != "plugin" || info.Capability != model.CapabilityPluginSecurity {
		t.Errorf("child = owner %q capability %v, want plugin/PluginSecurity", info.Owner, info.Capability)
	}
	info, _ = s.Lookup(orphan)
	if info.Owner != "root.js" || info.Capability != model.CapabilityLocalUser {
		t.Errorf("orphan = owner %q capability %v, want root.js/LocalUser", info.Owner, info.Capability)
	}
	if info.Status != model.TaskStatusIdle {
		t.Errorf("created status = %q, want idle", info.Status)
	}
	if s.QueueLen() != 0 {
		t.Errorf("Create queued %d tasks", s.QueueLen())
	}
	if c, ok := s.Capability(parent); !ok || c != model.CapabilityPluginSecurity {
		t.Errorf("Capability(parent) = %v, %v", c, ok)
	}
}

func TestStatus_ForeignAndNilThreads(t *testing.T) {
	s, _ := testSetup(t)
	other, _ := testSetup(t)

	foreign, err := other.Create(nil, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := mustStatus(t, s, foreign); got != model.TaskStatusKilled {
		t.Errorf("Status(foreign) = %q, want killed", got)
	}
	if _, ok := s.Lookup(foreign); ok {
		t.Error("Lookup(foreign) found a task")
	}
	if _, err := s.Status(nil); !model.IsArgumentError(err) {
		t.Errorf("Status(nil) err = %v, want argument error", err)
	}
}

func TestCancel_Rules(t *testing.T) {
	s, _ := testSetup(t)

	if err := s.Cancel(nil); !model.IsArgumentError(err) {
		t.Errorf("Cancel(nil) err = %v, want argument error", err)
	}

	var selfErr error
	th, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
		selfErr = s.Cancel(c)
		return nil
	}))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !model.IsLifecycleError(selfErr) {
		t.Errorf("Cancel(running) err = %v, want lifecycle error", selfErr)
	}
	if err := s.Cancel(th); err != nil {
		t.Errorf("Cancel(killed) err = %v, want nil", err)
	}
}

func TestKill_NotifiesOnce(t *testing.T) {
	s, _ := testSetup(t)

	th, err := s.Delay(nil, time.Hour, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	s.Kill(th)
	s.Kill(th)

	killed := outcomesOf(s.Run(), model.OutcomeKilled)
	if len(killed) != 1 || killed[0].Cause != model.CauseKilled {
		t.Errorf("killed outcomes = %+v, want one with cause killed", killed)
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0 after kill", s.QueueLen())
	}
	if _, ok := th.Userdata(); ok {
		t.Error("killed thread still carries userdata")
	}
}

func TestSilentKill_SuppressesKilledOutcome(t *testing.T) {
	s, _ := testSetup(t)

	th, err := s.Create(nil, body(func(*coro.Coroutine, []any) error { return nil }), SilentKill())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Spawn(nil, th); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if out := s.Run(); len(out) != 0 {
		t.Errorf("outcomes = %+v, want none", out)
	}
}

func TestClose_KillsEverything(t *testing.T) {
	s, _ := testSetup(t)

	unwound := make(chan struct{})
	if _, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
		defer close(unwound)
		_, err := s.Wait(c, time.Hour)
		return err
	})); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := s.Defer(nil, body(func(*coro.Coroutine, []any) error { return nil })); err != nil {
		t.Fatalf("Defer: %v", err)
	}

	outcomes := s.Close()
	if got := len(outcomesOf(outcomes, model.OutcomeKilled)); got != 2 {
		t.Errorf("killed outcomes = %d, want 2", got)
	}
	if s.Len() != 0 || s.QueueLen() != 0 {
		t.Errorf("Len=%d QueueLen=%d after Close", s.Len(), s.QueueLen())
	}
	select {
	case <-unwound:
	case <-time.After(time.Second):
		t.Fatal("waiting coroutine was not unwound by Close")
	}
}

func TestTasks_Snapshot(t *testing.T) {
	s, _ := testSetup(t)

	a, _ := s.Defer(nil, body(func(*coro.Coroutine, []any) error { return nil }), 1, 2, 3)
	b, _ := s.Delay(nil, time.Second, body(func(*coro.Coroutine, []any) error { return nil }))
	if err := s.Cancel(b); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	tasks := s.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("Tasks() len = %d, want 2", len(tasks))
	}
	if tasks[0].Identity != a.Identity() || tasks[0].Status != model.TaskStatusDeferring || tasks[0].PendingArgs != 3 {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if tasks[1].Timing.Kind != model.TimingDelay || tasks[1].Timing.Duration != time.Second || !tasks[1].Canceled {
		t.Errorf("tasks[1] = %+v", tasks[1])
	}
	if s.Active() != 1 {
		t.Errorf("Active() = %d, want 1", s.Active())
	}
	if th, ok := s.Thread(tasks[0].ID); !ok || th != a {
		t.Errorf("Thread(%d) = %v, %v", tasks[0].ID, th, ok)
	}
}
