package scheduler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/me/taskhost/internal/coro"
	"github.com/me/taskhost/pkg/model"
)

func TestRun_WaitNeverResumesEarly(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		wait    time.Duration
		tick    time.Duration
		resumed time.Duration
	}{
		{"aligned", 0, 200 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond},
		{"offset", 10 * time.Millisecond, 200 * time.Millisecond, 50 * time.Millisecond, 250 * time.Millisecond},
		{"zero wait", 0, 0, 50 * time.Millisecond, 50 * time.Millisecond},
		{"longer than tick", 0, 70 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := testSetup(t)
			clock.Advance(tt.offset)
			start := clock.Now()

			var resumedAt time.Time
			var elapsed time.Duration
			_, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
				var err error
				elapsed, err = s.Wait(c, tt.wait)
				resumedAt = clock.Now()
				return err
			}))
			if err != nil {
				t.Fatalf("Spawn: %v", err)
			}

			// Ticks land on multiples of tt.tick from epoch.
			clock.Advance(tt.tick - tt.offset)
			for i := 0; i < 20 && resumedAt.IsZero(); i++ {
				s.Run()
				if resumedAt.IsZero() {
					clock.Advance(tt.tick)
				}
			}

			if resumedAt.IsZero() {
				t.Fatal("waiting task never resumed")
			}
			if resumedAt.Before(start.Add(tt.wait)) {
				t.Errorf("resumed at %v, before start+wait %v", resumedAt.Sub(epoch), start.Add(tt.wait).Sub(epoch))
			}
			if got := resumedAt.Sub(epoch); got != tt.resumed {
				t.Errorf("resumed at t=%v, want %v", got, tt.resumed)
			}
			if elapsed < tt.wait {
				t.Errorf("elapsed = %v, want >= %v", elapsed, tt.wait)
			}
			if want := resumedAt.Sub(start); elapsed != want {
				t.Errorf("elapsed = %v, want %v", elapsed, want)
			}
		})
	}
}

func TestRun_WaitScenario(t *testing.T) {
	s, clock := testSetup(t)

	var elapsed time.Duration
	done := false
	if _, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
		var err error
		elapsed, err = s.Wait(c, 200*time.Millisecond)
		done = true
		return err
	})); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	tick := 0
	for !done && tick < 10 {
		clock.Advance(50 * time.Millisecond)
		tick++
		s.Run()
	}
	if tick != 4 {
		t.Errorf("resumed on tick %d, want 4 (t=0.2s)", tick)
	}
	if elapsed < 200*time.Millisecond || elapsed >= 250*time.Millisecond {
		t.Errorf("elapsed = %v, want in [200ms, 250ms)", elapsed)
	}
}

func TestRun_DelayThenCancelNeverRuns(t *testing.T) {
	s, clock := testSetup(t)

	ran := false
	th, err := s.Delay(nil, time.Second, body(func(*coro.Coroutine, []any) error {
		ran = true
		return nil
	}))
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if err := s.Cancel(th); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	for i := 0; i < 5; i++ {
		clock.Advance(500 * time.Millisecond)
		if out := s.Run(); len(out) != 0 {
			t.Errorf("tick %d outcomes = %+v, want none", i, out)
		}
	}

	if ran {
		t.Error("canceled delayed function executed")
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0 once skipped", s.QueueLen())
	}
	// The skipped task stays registered until killed.
	if got := mustStatus(t, s, th); got != model.TaskStatusDelaying {
		t.Errorf("status = %q, want delaying", got)
	}
	if s.Len() != 1 || s.Active() != 0 {
		t.Errorf("Len=%d Active=%d, want 1/0", s.Len(), s.Active())
	}
	s.Kill(th)
	if got := mustStatus(t, s, th); got != model.TaskStatusKilled {
		t.Errorf("status after Kill = %q, want killed", got)
	}
}

func TestRun_CancelSkipsOnlyWhenReady(t *testing.T) {
	s, clock := testSetup(t)

	th, err := s.Delay(nil, time.Second, body(func(*coro.Coroutine, []any) error { return nil }))
	if err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if err := s.Cancel(th); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	s.Run()
	if s.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d, want 1 before the delay elapses", s.QueueLen())
	}
	clock.Advance(time.Second)
	s.Run()
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0 after skip", s.QueueLen())
	}
}

func TestRun_DeferNeverInlines(t *testing.T) {
	s, _ := testSetup(t)

	var log []string
	child := body(func(*coro.Coroutine, []any) error {
		log = append(log, "child")
		return nil
	})
	if _, err := s.Defer(nil, body(func(c *coro.Coroutine, _ []any) error {
		log = append(log, "parent")
		if _, err := s.Defer(c, child); err != nil {
			return err
		}
		log = append(log, "parent-done")
		return nil
	})); err != nil {
		t.Fatalf("Defer: %v", err)
	}

	if len(log) != 0 {
		t.Fatalf("Defer ran inline: %v", log)
	}
	s.Run()
	if fmt.Sprint(log) != "[parent parent-done]" {
		t.Fatalf("after first tick log = %v, want [parent parent-done]", log)
	}
	s.Run()
	if fmt.Sprint(log) != "[parent parent-done child]" {
		t.Errorf("after second tick log = %v", log)
	}
}

func TestRun_DeferOrder(t *testing.T) {
	s, _ := testSetup(t)

	var order []string
	for _, name := range []string{"A", "B", "C"} {
		if _, err := s.Defer(nil, body(func(_ *coro.Coroutine, args []any) error {
			order = append(order, args[0].(string))
			return nil
		}), name); err != nil {
			t.Fatalf("Defer %s: %v", name, err)
		}
	}

	s.Run()
	if fmt.Sprint(order) != "[A B C]" {
		t.Errorf("order = %v, want [A B C]", order)
	}
}

func TestRun_ReadyTasksResumeInQueueOrder(t *testing.T) {
	s, clock := testSetup(t)

	var order []string
	record := func(name string) coro.Func {
		return body(func(*coro.Coroutine, []any) error {
			order = append(order, name)
			return nil
		})
	}
	// Queue order: delay(30ms), defer, delay(10ms).
	if _, err := s.Delay(nil, 30*time.Millisecond, record("slow")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Defer(nil, record("now")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Delay(nil, 10*time.Millisecond, record("fast")); err != nil {
		t.Fatal(err)
	}

	clock.Advance(50 * time.Millisecond)
	s.Run()
	if fmt.Sprint(order) != "[slow now fast]" {
		t.Errorf("order = %v, want insertion order [slow now fast]", order)
	}
}

func TestRun_KillFromEarlierTaskSkipsLaterOne(t *testing.T) {
	s, _ := testSetup(t)

	ran := false
	victim := body(func(*coro.Coroutine, []any) error {
		ran = true
		return nil
	})
	first, err := s.Create(nil, body(func(_ *coro.Coroutine, args []any) error {
		s.Kill(args[0].(*coro.Coroutine))
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Create(nil, victim)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Defer(nil, first, second); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Defer(nil, second); err != nil {
		t.Fatal(err)
	}

	s.Run()
	if ran {
		t.Error("task killed earlier in the tick was resumed")
	}
}

func TestRun_SingleTeardownPerTask(t *testing.T) {
	s, _ := testSetup(t)

	completes := body(func(*coro.Coroutine, []any) error { return nil })
	errs := body(func(*coro.Coroutine, []any) error { return errors.New("boom") })
	killsSelf := body(func(c *coro.Coroutine, _ []any) error {
		s.Kill(c)
		c.Yield()
		return nil
	})

	var threads []string
	for _, fn := range []coro.Func{completes, errs, killsSelf} {
		th, err := s.Defer(nil, fn)
		if err != nil {
			t.Fatalf("Defer: %v", err)
		}
		threads = append(threads, th.Identity())
	}
	waiter, err := s.Spawn(nil, body(func(c *coro.Coroutine, _ []any) error {
		_, err := s.Wait(c, time.Hour)
		return err
	}))
	if err != nil {
		t.Fatal(err)
	}
	threads = append(threads, waiter.Identity())

	outcomes := s.Run()
	outcomes = append(outcomes, s.Run()...)
	s.Kill(waiter)
	outcomes = append(outcomes, s.Close()...)

	counts := map[string]int{}
	for _, o := range outcomesOf(outcomes, model.OutcomeKilled) {
		counts[o.Identity]++
	}
	for _, id := range threads {
		if counts[id] != 1 {
			t.Errorf("thread %s killed %d times, want 1", id, counts[id])
		}
	}
	if got := len(outcomesOf(outcomes, model.OutcomeFailed)); got != 1 {
		t.Errorf("failed outcomes = %d, want 1", got)
	}
}

func TestRun_NeverFails(t *testing.T) {
	s, _ := testSetup(t)

	for i := 0; i < 20; i++ {
		if _, err := s.Defer(nil, body(func(*coro.Coroutine, []any) error {
			if i%2 == 0 {
				panic(fmt.Sprintf("task %d exploded", i))
			}
			return fmt.Errorf("task %d failed", i)
		})); err != nil {
			t.Fatal(err)
		}
	}

	failed := outcomesOf(s.Run(), model.OutcomeFailed)
	if len(failed) != 20 {
		t.Errorf("failed outcomes = %d, want 20", len(failed))
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestRun_StatusNeverRunningBetweenTicks(t *testing.T) {
	s, _ := testSetup(t)

	th, err := s.Defer(nil, body(func(c *coro.Coroutine, _ []any) error {
		c.Yield()
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	s.Run()
	if got := mustStatus(t, s, th); got != model.TaskStatusYielding {
		t.Errorf("status after self-yield = %q, want yielding", got)
	}
	if s.QueueLen() != 0 {
		t.Error("self-yielded task was requeued")
	}
}
