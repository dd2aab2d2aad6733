package store

import (
	"context"

	"github.com/me/taskhost/pkg/model"
)

// Store defines the persistence layer for script runs and their outcome
// journal.
type Store interface {
	// Run records
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Outcome journal
	RecordOutcome(ctx context.Context, runID string, o model.Outcome) error
	ListOutcomes(ctx context.Context, opts model.ListOptions) ([]*model.JournalEntry, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
