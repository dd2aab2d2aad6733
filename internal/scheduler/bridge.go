package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

// WorkFunc is blocking work run off the driver goroutine. Its values become
// the resume arguments of the thread that requested it.
type WorkFunc func(ctx context.Context) ([]any, error)

// YieldForWork suspends th, which must be the running thread, and runs work
// on the executor. When work succeeds th is queued to resume with its
// values; when it fails the failure is reported and the task destroyed.
// Stackful hosts receive the values as the return value; continuation hosts
// get nil and receive them through their continuation.
func (s *Scheduler) YieldForWork(th host.Thread, work WorkFunc) ([]any, error) {
	if th == nil {
		return nil, model.NewArgumentError("yieldForWork", "expected thread, got nil")
	}
	if work == nil {
		return nil, model.NewArgumentError("yieldForWork", "expected work function, got nil")
	}
	t := s.reg.lookup(th)
	if t == nil {
		return nil, model.NewLifecycleError("yieldForWork", "thread is not scheduled")
	}

	t.mu.Lock()
	if t.status != model.TaskStatusRunning {
		t.mu.Unlock()
		return nil, model.NewLifecycleError("yieldForWork", "called on a thread that is %s", t.status)
	}
	if err := t.transition(model.TaskStatusYielding); err != nil {
		t.mu.Unlock()
		return nil, model.NewLifecycleError("yieldForWork", "%v", err)
	}
	t.working = true
	t.mu.Unlock()

	// The job may finish before th yields. Its result sits in the ready
	// queue until a tick that starts after this resume returns.
	s.exec.Go(s.ctx, func(ctx context.Context) {
		s.runWork(ctx, t, work)
	})
	return th.Yield(), nil
}

func (s *Scheduler) runWork(ctx context.Context, t *Task, work WorkFunc) {
	start := time.Now()
	values, err := callWork(ctx, work)
	s.metrics.RecordWorkerDuration(time.Since(start), err != nil)

	if err != nil {
		s.feedback(t, model.CauseWorker, err.Error())
		s.destroy(t, model.CauseWorker)
		return
	}
	if err := s.queueForResume(t, values, true); err != nil {
		s.logger.Debug("dropping worker result", "task", t.id, "error", err)
	}
}

func callWork(ctx context.Context, work WorkFunc) (values []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return work(ctx)
}

// QueueForResume queues a suspended thread to resume on the next tick with
// args. It is safe to call from any goroutine.
func (s *Scheduler) QueueForResume(th host.Thread, args ...any) error {
	t := s.reg.lookup(th)
	if t == nil {
		return model.NewLifecycleError("queueForResume", "thread is not scheduled")
	}
	return s.queueForResume(t, args, false)
}

// queueForResume queues t with args. fromWork marks the delivery of t's own
// YieldForWork result; anything else is refused while that job is pending.
func (s *Scheduler) queueForResume(t *Task, args []any, fromWork bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fromWork {
		t.working = false
	}
	switch {
	case t.working:
		return model.NewLifecycleError("queueForResume", "thread is waiting for a worker")
	case t.killed:
		return model.NewLifecycleError("queueForResume", "thread was killed")
	case t.status == model.TaskStatusRunning:
		return model.NewLifecycleError("queueForResume", "thread is running")
	case s.queue.contains(t.id):
		return model.NewLifecycleError("queueForResume", "thread is already scheduled to resume")
	}
	t.timing = model.Timing{Kind: model.TimingInstant}
	t.args = args
	s.queue.push(t.id)
	return nil
}
