package scheduler

import (
	"time"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

// Run performs one driver tick. It resumes every queued task whose timing
// is satisfied, in queue order, and returns the outcomes posted since the
// previous tick. Tasks queued during the tick wait for the next one. Run
// never fails; failures of resumed tasks are returned as outcomes.
func (s *Scheduler) Run() []model.Outcome {
	start := time.Now()
	now := s.clock.Now()

	var ready []*Task
	for _, id := range s.queue.snapshot() {
		t := s.reg.get(id)
		if t != nil && t.ready(now) {
			ready = append(ready, t)
		}
	}

	resumed := 0
	for _, t := range ready {
		args, ok := s.dequeue(t)
		if !ok {
			continue
		}
		s.resume(t, args)
		resumed++
	}

	s.metrics.RecordTick(resumed, time.Since(start))
	s.metrics.RecordQueueDepth(s.queue.len())
	s.metrics.RecordLiveTasks(s.reg.len())
	return s.outcomes.drain()
}

// ready evaluates t's timing policy at now. A ready Wait records its
// elapsed time, which becomes the resume value.
func (t *Task) ready(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.timing.Kind {
	case model.TimingWait:
		elapsed := now.Sub(t.timing.Start)
		if elapsed < t.timing.Duration {
			return false
		}
		t.timing.Elapsed = elapsed
		return true
	case model.TimingDelay:
		return now.Sub(t.timing.Start) >= t.timing.Duration
	default:
		return true
	}
}

// dequeue removes a ready task from the queue and marks it Running. It
// returns false if the task must not be resumed: it was killed or dequeued
// earlier in this tick, or it is canceled.
func (s *Scheduler) dequeue(t *Task) ([]any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.killed || !s.queue.remove(t.id) {
		return nil, false
	}
	if t.canceled {
		s.logger.Debug("skipping canceled task", "task", t.id, "status", t.status)
		return nil, false
	}
	if err := t.transition(model.TaskStatusRunning); err != nil {
		s.logger.Error("dequeue", "error", err)
		return nil, false
	}

	args := t.args
	if t.timing.Kind == model.TimingWait {
		args = []any{t.timing.Elapsed}
	}
	t.args = nil
	return args, true
}

// resume runs t's thread with args and routes the result. The caller has
// already set t Running.
func (s *Scheduler) resume(t *Task, args []any) {
	res := t.thread.Resume(args)

	switch res.Status {
	case host.Completed:
		s.destroy(t, model.CauseCompleted)
	case host.Failed:
		s.feedback(t, model.CauseErrored, res.Message)
		s.destroy(t, model.CauseErrored)
	case host.Suspended:
		// A thread that yielded on its own stays registered and unqueued
		// until something resumes it.
		t.mu.Lock()
		if t.status == model.TaskStatusRunning {
			_ = t.transition(model.TaskStatusYielding)
		}
		t.mu.Unlock()
	}
}
