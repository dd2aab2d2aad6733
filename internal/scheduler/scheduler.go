// Package scheduler runs cooperatively scheduled tasks on host threads.
//
// A Scheduler owns a registry of live tasks and a ready queue. Each call to
// Run is one driver tick: it resumes every queued task whose timing policy
// is satisfied, in queue order. Scheduling primitives (Spawn, Defer, Delay,
// Wait, YieldForWork) and Run must be called from a single driver goroutine.
// Cancel, Kill, QueueForResume and the read accessors are safe from any
// goroutine.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/taskhost/internal/executor"
	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

// Scheduler is a cooperative task scheduler bound to one host runtime.
type Scheduler struct {
	rt         host.Runtime
	clock      Clock
	exec       executor.Executor
	logger     *slog.Logger
	metrics    Metrics
	capability model.Capability
	owner      string

	reg      *registry
	queue    *readyQueue
	outcomes mailbox

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for wait and delay timing.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithExecutor sets the executor that runs worker-bridge jobs.
func WithExecutor(e executor.Executor) Option {
	return func(s *Scheduler) { s.exec = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithCapability sets the capability of tasks created without a managed parent.
func WithCapability(c model.Capability) Option {
	return func(s *Scheduler) { s.capability = c }
}

// WithOwner sets the owner label of tasks created without a managed parent.
func WithOwner(owner string) Option {
	return func(s *Scheduler) { s.owner = owner }
}

// New creates a Scheduler that creates threads through rt.
func New(rt host.Runtime, opts ...Option) *Scheduler {
	s := &Scheduler{
		rt:         rt,
		clock:      SystemClock(),
		logger:     slog.Default(),
		metrics:    NilMetrics{},
		capability: model.CapabilityHostScript,
		owner:      "host",
		reg:        newRegistry(),
		queue:      newReadyQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	if s.exec == nil {
		s.exec = executor.NewGoroutineExecutor(0, s.logger)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// TaskOption configures a task created by Create.
type TaskOption func(*taskSpec)

type taskSpec struct {
	owner      string
	capability model.Capability
	notifyKill bool
}

// Owner labels the task with the given owner.
func Owner(owner string) TaskOption {
	return func(ts *taskSpec) { ts.owner = owner }
}

// WithTaskCapability sets the task's capability tier.
func WithTaskCapability(c model.Capability) TaskOption {
	return func(ts *taskSpec) { ts.capability = c }
}

// SilentKill suppresses the killed outcome at teardown.
func SilentKill() TaskOption {
	return func(ts *taskSpec) { ts.notifyKill = false }
}

// Create makes a new Idle task for fn without scheduling it. Owner and
// capability are inherited from parent when parent is a live task.
func (s *Scheduler) Create(parent host.Thread, fn any, opts ...TaskOption) (host.Thread, error) {
	t, err := s.create("create", parent, fn, opts...)
	if err != nil {
		return nil, err
	}
	return t.thread, nil
}

func (s *Scheduler) create(op string, parent host.Thread, fn any, opts ...TaskOption) (*Task, error) {
	th, err := s.rt.NewThread(fn)
	if err != nil {
		return nil, model.NewArgumentError(op, "%v", err)
	}

	spec := taskSpec{owner: s.owner, capability: s.capability, notifyKill: true}
	if p := s.reg.lookup(parent); p != nil {
		spec.owner, spec.capability = p.owner, p.capability
	}
	for _, opt := range opts {
		opt(&spec)
	}

	t := s.reg.create(th, spec.owner, spec.capability, spec.notifyKill, s.clock.Now())
	s.metrics.RecordTaskCreated()
	s.logger.Debug("task created", "task", t.id, "thread", t.identity, "owner", t.owner)
	return t, nil
}

// resolve returns the task for target: the live task of an existing thread,
// or a new task created from a function.
func (s *Scheduler) resolve(op string, parent host.Thread, target any) (*Task, error) {
	switch v := target.(type) {
	case nil:
		return nil, model.NewArgumentError(op, "expected function or thread, got nil")
	case host.Thread:
		t := s.reg.lookup(v)
		if t == nil {
			return nil, model.NewLifecycleError(op, "cannot schedule a killed thread")
		}
		return t, nil
	}
	return s.create(op, parent, target)
}

// Spawn resumes target immediately, before returning. target is an Idle or
// Yielding thread, or a function to run on a new thread. Failures inside the
// spawned thread are reported as outcomes, not returned.
func (s *Scheduler) Spawn(parent host.Thread, target any, args ...any) (host.Thread, error) {
	t, err := s.resolve("spawn", parent, target)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if reason := t.schedulable(s.queue.contains(t.id)); reason != "" {
		t.mu.Unlock()
		return nil, model.NewLifecycleError("spawn", "%s", reason)
	}
	if err := t.transition(model.TaskStatusRunning); err != nil {
		t.mu.Unlock()
		return nil, model.NewLifecycleError("spawn", "%v", err)
	}
	t.args = nil
	t.mu.Unlock()

	s.resume(t, args)
	return t.thread, nil
}

// Defer queues target to resume on a later tick.
func (s *Scheduler) Defer(parent host.Thread, target any, args ...any) (host.Thread, error) {
	t, err := s.resolve("defer", parent, target)
	if err != nil {
		return nil, err
	}
	timing := model.Timing{Kind: model.TimingInstant}
	if err := s.enqueue("defer", t, model.TaskStatusDeferring, timing, args); err != nil {
		return nil, err
	}
	return t.thread, nil
}

// Delay queues target to resume once d has passed.
func (s *Scheduler) Delay(parent host.Thread, d time.Duration, target any, args ...any) (host.Thread, error) {
	if d < 0 {
		return nil, model.NewArgumentError("delay", "duration must be >= 0, got %v", d)
	}
	t, err := s.resolve("delay", parent, target)
	if err != nil {
		return nil, err
	}
	timing := model.Timing{Kind: model.TimingDelay, Start: s.clock.Now(), Duration: d}
	if err := s.enqueue("delay", t, model.TaskStatusDelaying, timing, args); err != nil {
		return nil, err
	}
	return t.thread, nil
}

func (s *Scheduler) enqueue(op string, t *Task, status model.TaskStatus, timing model.Timing, args []any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if reason := t.schedulable(s.queue.contains(t.id)); reason != "" {
		return model.NewLifecycleError(op, "%s", reason)
	}
	if err := t.transition(status); err != nil {
		return model.NewLifecycleError(op, "%v", err)
	}
	t.timing = timing
	t.args = args
	s.queue.push(t.id)
	return nil
}

// Wait suspends th, which must be the running thread, for at least d. It
// returns the elapsed time delivered on resumption. Hosts whose Yield does
// not block receive the elapsed time through their own continuation and
// get 0 here.
func (s *Scheduler) Wait(th host.Thread, d time.Duration) (time.Duration, error) {
	if th == nil {
		return 0, model.NewArgumentError("wait", "expected thread, got nil")
	}
	if d < 0 {
		return 0, model.NewArgumentError("wait", "duration must be >= 0, got %v", d)
	}
	t := s.reg.lookup(th)
	if t == nil {
		return 0, model.NewLifecycleError("wait", "thread is not scheduled")
	}

	t.mu.Lock()
	if t.status != model.TaskStatusRunning {
		t.mu.Unlock()
		return 0, model.NewLifecycleError("wait", "wait called on a thread that is %s", t.status)
	}
	if err := t.transition(model.TaskStatusWaiting); err != nil {
		t.mu.Unlock()
		return 0, model.NewLifecycleError("wait", "%v", err)
	}
	t.timing = model.Timing{Kind: model.TimingWait, Start: s.clock.Now(), Duration: d}
	t.args = nil
	s.queue.push(t.id)
	t.mu.Unlock()

	resumed := th.Yield()
	if len(resumed) > 0 {
		if elapsed, ok := resumed[0].(time.Duration); ok {
			return elapsed, nil
		}
	}
	return 0, nil
}

// Cancel marks th so its next scheduling attempt is skipped. The task stays
// registered until killed. Cancelling a killed or unknown thread is a no-op;
// cancelling the running thread is an error.
func (s *Scheduler) Cancel(th host.Thread) error {
	if th == nil {
		return model.NewArgumentError("cancel", "expected thread, got nil")
	}
	t := s.reg.lookup(th)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == model.TaskStatusRunning {
		return model.NewLifecycleError("cancel", "cannot cancel a running thread")
	}
	if !t.canceled {
		t.canceled = true
		s.logger.Debug("task canceled", "task", t.id, "status", t.status)
	}
	return nil
}

// Status returns th's status, or TaskStatusKilled if it has no live task.
func (s *Scheduler) Status(th host.Thread) (model.TaskStatus, error) {
	if th == nil {
		return "", model.NewArgumentError("status", "expected thread, got nil")
	}
	t := s.reg.lookup(th)
	if t == nil {
		return model.TaskStatusKilled, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, nil
}

// Kill destroys th's task. It is a no-op for killed or unknown threads.
func (s *Scheduler) Kill(th host.Thread) {
	if t := s.reg.lookup(th); t != nil {
		s.destroy(t, model.CauseKilled)
	}
}

// Capability returns the capability tier of th's task.
func (s *Scheduler) Capability(th host.Thread) (model.Capability, bool) {
	t := s.reg.lookup(th)
	if t == nil {
		return model.CapabilityNone, false
	}
	return t.capability, true
}

// Lookup returns a snapshot of th's task.
func (s *Scheduler) Lookup(th host.Thread) (model.TaskInfo, bool) {
	t := s.reg.lookup(th)
	if t == nil {
		return model.TaskInfo{}, false
	}
	return t.Info(), true
}

// Thread returns the thread of the live task with the given id.
func (s *Scheduler) Thread(id model.TaskID) (host.Thread, bool) {
	t := s.reg.get(id)
	if t == nil {
		return nil, false
	}
	return t.thread, true
}

// Tasks returns snapshots of all live tasks ordered by id.
func (s *Scheduler) Tasks() []model.TaskInfo {
	tasks := s.reg.all()
	out := make([]model.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Info())
	}
	return out
}

// Len returns the number of live tasks.
func (s *Scheduler) Len() int {
	return s.reg.len()
}

// Active returns the number of live tasks that are not canceled.
func (s *Scheduler) Active() int {
	n := 0
	for _, t := range s.reg.all() {
		t.mu.Lock()
		if !t.canceled {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// QueueLen returns the number of tasks in the ready queue.
func (s *Scheduler) QueueLen() int {
	return s.queue.len()
}

// Close destroys every live task, cancels outstanding worker contexts and
// returns the outcomes not yet delivered by Run.
func (s *Scheduler) Close() []model.Outcome {
	s.cancel()
	for _, t := range s.reg.all() {
		s.destroy(t, model.CauseKilled)
	}
	return s.outcomes.drain()
}

// destroy tears t down. Only the first caller for a given task has any
// effect, so the killed outcome is posted at most once.
func (s *Scheduler) destroy(t *Task, cause model.KillCause) {
	if !s.reg.remove(t) {
		return
	}

	t.mu.Lock()
	t.killed = true
	t.args = nil
	s.queue.remove(t.id)
	t.mu.Unlock()

	if t.notifyKill {
		s.outcomes.post(model.Outcome{
			TaskID:   t.id,
			Identity: t.identity,
			Owner:    t.owner,
			Kind:     model.OutcomeKilled,
			Cause:    cause,
			At:       s.clock.Now(),
		})
	}
	t.thread.ClearUserdata()
	t.thread.Close()

	s.metrics.RecordTaskDestroyed(cause)
	s.logger.Debug("task destroyed", "task", t.id, "cause", cause)
}

// feedback posts a failure outcome for t unless t was already torn down.
func (s *Scheduler) feedback(t *Task, cause model.KillCause, msg string) {
	t.mu.Lock()
	killed := t.killed
	t.mu.Unlock()
	if killed {
		s.logger.Debug("dropping failure of killed task", "task", t.id, "error", msg)
		return
	}

	s.outcomes.post(model.Outcome{
		TaskID:   t.id,
		Identity: t.identity,
		Owner:    t.owner,
		Kind:     model.OutcomeFailed,
		Cause:    cause,
		Message:  msg,
		At:       s.clock.Now(),
	})
	s.metrics.RecordFeedback(cause)
}
