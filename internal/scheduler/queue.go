package scheduler

import (
	"slices"
	"sync"

	"github.com/me/taskhost/pkg/model"
)

// readyQueue holds the tasks awaiting a driver tick, in insertion order.
// An id appears at most once. It has its own lock, separate from the
// registry's, so resumption never runs with the queue locked.
type readyQueue struct {
	mu      sync.RWMutex
	order   []model.TaskID
	members map[model.TaskID]struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{members: make(map[model.TaskID]struct{})}
}

// push appends id. It returns false if id is already queued.
func (q *readyQueue) push(id model.TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.members[id]; ok {
		return false
	}
	q.members[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

// remove deletes id. It returns false if id was not queued.
func (q *readyQueue) remove(id model.TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.members[id]; !ok {
		return false
	}
	delete(q.members, id)
	if i := slices.Index(q.order, id); i >= 0 {
		q.order = slices.Delete(q.order, i, i+1)
	}
	return true
}

func (q *readyQueue) contains(id model.TaskID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.members[id]
	return ok
}

// snapshot copies the queue under the read lock.
func (q *readyQueue) snapshot() []model.TaskID {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.order)
}

func (q *readyQueue) len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}
