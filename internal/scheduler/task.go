package scheduler

import (
	"sync"
	"time"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

// Task is the scheduler's record for one host thread. Fields below mu are
// guarded by it; the rest are fixed at creation.
type Task struct {
	id         model.TaskID
	thread     host.Thread
	identity   string
	owner      string
	capability model.Capability
	notifyKill bool
	createdAt  time.Time

	mu       sync.Mutex
	status   model.TaskStatus
	timing   model.Timing
	canceled bool
	killed   bool
	working  bool // a YieldForWork job is outstanding
	args     []any
}

func newTask(id model.TaskID, th host.Thread, owner string, capability model.Capability, notifyKill bool, now time.Time) *Task {
	return &Task{
		id:         id,
		thread:     th,
		identity:   th.Identity(),
		owner:      owner,
		capability: capability,
		notifyKill: notifyKill,
		createdAt:  now,
		status:     model.TaskStatusIdle,
		timing:     model.Timing{Kind: model.TimingInstant},
	}
}

// ID returns the task's arena index.
func (t *Task) ID() model.TaskID { return t.id }

// Thread returns the host thread the task schedules.
func (t *Task) Thread() host.Thread { return t.thread }

// transition moves the task to next. Caller holds t.mu.
func (t *Task) transition(next model.TaskStatus) error {
	if !t.status.CanTransitionTo(next) {
		return &model.InvalidTransitionError{ID: t.id, From: t.status, To: next}
	}
	t.status = next
	return nil
}

// schedulable reports why the task cannot be handed to spawn, defer or
// delay, or "" if it can. Caller holds t.mu.
func (t *Task) schedulable(queued bool) string {
	switch {
	case t.killed:
		return "cannot schedule a killed thread"
	case t.canceled:
		return "cannot schedule a canceled thread"
	case queued:
		return "thread is already scheduled to resume"
	case t.working:
		return "thread is waiting for a worker"
	case !t.status.IsResumable():
		return "cannot schedule a thread that is " + t.status.String()
	}
	return ""
}

// info returns a snapshot of the task. Caller holds t.mu.
func (t *Task) info() model.TaskInfo {
	return model.TaskInfo{
		ID:          t.id,
		Identity:    t.identity,
		Owner:       t.owner,
		Status:      t.status,
		Timing:      t.timing,
		Capability:  t.capability,
		Canceled:    t.canceled,
		PendingArgs: len(t.args),
		CreatedAt:   t.createdAt,
	}
}

// Info returns a snapshot of the task.
func (t *Task) Info() model.TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info()
}
