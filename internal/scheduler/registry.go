package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/pkg/model"
)

// registry is the arena of live tasks. Threads carry only their TaskID as
// userdata; lookups verify the arena entry still refers to the same thread,
// so a thread from another registry or a recycled id never resolves.
type registry struct {
	mu     sync.RWMutex
	nextID model.TaskID
	tasks  map[model.TaskID]*Task
}

func newRegistry() *registry {
	return &registry{tasks: make(map[model.TaskID]*Task)}
}

// create attaches a fresh Idle task to th.
func (r *registry) create(th host.Thread, owner string, capability model.Capability, notifyKill bool, now time.Time) *Task {
	r.mu.Lock()
	r.nextID++
	t := newTask(r.nextID, th, owner, capability, notifyKill, now)
	r.tasks[t.id] = t
	r.mu.Unlock()

	th.SetUserdata(uint64(t.id))
	return t
}

// lookup returns the live task for th, or nil if th is unknown.
func (r *registry) lookup(th host.Thread) *Task {
	if th == nil {
		return nil
	}
	id, ok := th.Userdata()
	if !ok {
		return nil
	}
	r.mu.RLock()
	t := r.tasks[model.TaskID(id)]
	r.mu.RUnlock()
	if t == nil || t.thread != th {
		return nil
	}
	return t
}

// get returns the live task with the given id.
func (r *registry) get(id model.TaskID) *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[id]
}

// remove unlinks t. It returns false if t was already removed, so exactly
// one caller performs teardown.
func (r *registry) remove(t *Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[t.id] != t {
		return false
	}
	delete(r.tasks, t.id)
	return true
}

// all returns the live tasks ordered by id.
func (r *registry) all() []*Task {
	r.mu.RLock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
