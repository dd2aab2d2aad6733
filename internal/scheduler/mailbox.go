package scheduler

import (
	"sync"

	"github.com/me/taskhost/pkg/model"
)

// mailbox collects outcomes from the driver and from worker goroutines
// until the next Run drains them.
type mailbox struct {
	mu    sync.Mutex
	items []model.Outcome
}

func (m *mailbox) post(o model.Outcome) {
	m.mu.Lock()
	m.items = append(m.items, o)
	m.mu.Unlock()
}

func (m *mailbox) drain() []model.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}
