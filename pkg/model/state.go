package model

// TaskStatus represents the scheduling state of a Task.
type TaskStatus string

const (
	TaskStatusIdle      TaskStatus = "idle"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusYielding  TaskStatus = "yielding"
	TaskStatusWaiting   TaskStatus = "waiting"
	TaskStatusDeferring TaskStatus = "deferring"
	TaskStatusDelaying  TaskStatus = "delaying"

	// TaskStatusKilled is reported for threads whose task has been torn
	// down. It is never stored on a live Task.
	TaskStatusKilled TaskStatus = "killed"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsQueued returns true if the status means the task sits in the ready queue.
func (s TaskStatus) IsQueued() bool {
	switch s {
	case TaskStatusWaiting, TaskStatusDeferring, TaskStatusDelaying:
		return true
	}
	return false
}

// IsResumable returns true if a thread in this status may be resumed directly.
func (s TaskStatus) IsResumable() bool {
	return s == TaskStatusIdle || s == TaskStatusYielding
}

// ValidTaskTransitions defines the allowed status transitions for Tasks.
// Terminal outcomes are not statuses; a finished task leaves the registry.
var ValidTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusIdle:      {TaskStatusWaiting, TaskStatusDeferring, TaskStatusDelaying, TaskStatusRunning},
	TaskStatusRunning:   {TaskStatusYielding, TaskStatusWaiting},
	TaskStatusYielding:  {TaskStatusRunning, TaskStatusDeferring, TaskStatusDelaying},
	TaskStatusWaiting:   {TaskStatusRunning},
	TaskStatusDeferring: {TaskStatusRunning},
	TaskStatusDelaying:  {TaskStatusRunning},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunState represents the lifecycle state of a script run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
	RunStateCancelled RunState = "CANCELLED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}
