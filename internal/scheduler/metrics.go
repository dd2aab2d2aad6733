package scheduler

import (
	"time"

	"github.com/me/taskhost/pkg/model"
)

// Metrics receives scheduler instrumentation events.
type Metrics interface {
	// RecordTaskCreated records that a task was registered.
	RecordTaskCreated()
	// RecordTaskDestroyed records a teardown and its cause.
	RecordTaskDestroyed(cause model.KillCause)
	// RecordFeedback records a failure reported by a task or worker.
	RecordFeedback(cause model.KillCause)
	// RecordTick records one driver pass and how many tasks it resumed.
	RecordTick(resumed int, duration time.Duration)
	// RecordQueueDepth records the ready queue length after a tick.
	RecordQueueDepth(depth int)
	// RecordLiveTasks records the registry size after a tick.
	RecordLiveTasks(n int)
	// RecordWorkerDuration records how long a worker-bridge job ran.
	RecordWorkerDuration(duration time.Duration, failed bool)
}

// NilMetrics provides a no-op metrics implementation.
type NilMetrics struct{}

func (NilMetrics) RecordTaskCreated() {}
func (NilMetrics) RecordTaskDestroyed(model.KillCause) {}
func (NilMetrics) RecordFeedback(model.KillCause) {}
func (NilMetrics) RecordTick(int, time.Duration) {}
func (NilMetrics) RecordQueueDepth(int) {}
func (NilMetrics) RecordLiveTasks(int) {}
func (NilMetrics) RecordWorkerDuration(time.Duration, bool) {}
