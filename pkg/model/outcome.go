package model

import "time"

// OutcomeKind tags an Outcome message.
type OutcomeKind string

const (
	// OutcomeFailed carries a human-readable failure message (feedback).
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeKilled marks the teardown of a task (on-kill).
	OutcomeKilled OutcomeKind = "killed"
)

// KillCause records why a task was torn down.
type KillCause string

const (
	CauseCompleted KillCause = "completed"
	CauseErrored   KillCause = "errored"
	CauseWorker    KillCause = "worker"
	CauseKilled    KillCause = "killed"
)

// Outcome is a lifecycle message emitted by the scheduler. Failures and
// teardowns are delivered as values so they can cross goroutines safely.
type Outcome struct {
	TaskID   TaskID      `json:"task_id"`
	Identity string      `json:"identity"`
	Owner    string      `json:"owner,omitempty"`
	Kind     OutcomeKind `json:"kind"`
	Cause    KillCause   `json:"cause,omitempty"`
	Message  string      `json:"message,omitempty"`
	At       time.Time   `json:"at"`
}

// IsFailure returns true if the outcome carries a failure message.
func (o Outcome) IsFailure() bool {
	return o.Kind == OutcomeFailed
}

// Run is a persisted record of one script execution.
type Run struct {
	ID         string     `json:"id"`
	Script     string     `json:"script"`
	State      RunState   `json:"state"`
	Capability Capability `json:"capability"`
	Failures   int        `json:"failures"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JournalEntry is an Outcome as stored in the journal, tagged with its run.
type JournalEntry struct {
	Seq     int64   `json:"seq"`
	RunID   string  `json:"run_id"`
	Outcome Outcome `json:"outcome"`
}
