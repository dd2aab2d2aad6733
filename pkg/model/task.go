package model

import "time"

// TaskID is the stable arena index of a Task. Host threads carry it as
// opaque userdata instead of a pointer.
type TaskID uint64

// TimingKind selects the readiness policy of a queued task.
type TimingKind string

const (
	TimingInstant TimingKind = "instant"
	TimingWait    TimingKind = "wait"
	TimingDelay   TimingKind = "delay"
)

// Timing is the tagged readiness policy of a queued task. Start and
// Duration are meaningful for Wait and Delay; Elapsed is recorded for Wait
// once the task becomes ready.
type Timing struct {
	Kind     TimingKind    `json:"kind"`
	Start    time.Time     `json:"start,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns,omitempty"`
}

// TaskInfo is a read-only snapshot of a live Task, used for diagnostics.
type TaskInfo struct {
	ID          TaskID     `json:"id"`
	Identity    string     `json:"identity"`
	Owner       string     `json:"owner,omitempty"`
	Status      TaskStatus `json:"status"`
	Timing      Timing     `json:"timing"`
	Capability  Capability `json:"capability"`
	Canceled    bool       `json:"canceled"`
	PendingArgs int        `json:"pending_args"`
	CreatedAt   time.Time  `json:"created_at"`
}
