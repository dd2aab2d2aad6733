package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/taskhost/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Run records ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, script, state, capability, failures, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Script, string(run.State), run.Capability.String(), run.Failures,
		run.StartedAt.Format(time.RFC3339Nano), formatOptional(run.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, script, state, capability, failures, started_at, finished_at
		 FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, script, state, capability, failures, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state=?, failures=?, finished_at=? WHERE id=?`,
		string(run.State), run.Failures, formatOptional(run.FinishedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// --- Outcome journal ---

// RecordOutcome appends o to the journal of runID. Failure outcomes also
// bump the run's failure count.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, runID string, o model.Outcome) error {
	s.logger.Debug("sql", "op", "insert", "table", "outcomes", "run_id", runID, "task", o.TaskID, "kind", o.Kind)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, task_id, identity, owner, kind, cause, message, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(o.TaskID), o.Identity, o.Owner, string(o.Kind), string(o.Cause), o.Message,
		o.At.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	if o.IsFailure() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET failures = failures + 1 WHERE id = ?`, runID); err != nil {
			return fmt.Errorf("count failure: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, opts model.ListOptions) ([]*model.JournalEntry, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "outcomes", "run_id", opts.RunID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var countArgs []any

	if opts.RunID != "" {
		whereClauses = append(whereClauses, "run_id = ?")
		countArgs = append(countArgs, opts.RunID)
	}
	if opts.Kind != "" {
		whereClauses = append(whereClauses, "kind = ?")
		countArgs = append(countArgs, string(opts.Kind))
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outcomes`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT seq, run_id, task_id, identity, owner, kind, cause, message, at
		FROM outcomes` + whereSQL + ` ORDER BY seq LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var taskID int64
		var kind, cause, at string
		if err := rows.Scan(&e.Seq, &e.RunID, &taskID, &e.Outcome.Identity, &e.Outcome.Owner,
			&kind, &cause, &e.Outcome.Message, &at); err != nil {
			return nil, 0, err
		}
		e.Outcome.TaskID = model.TaskID(taskID)
		e.Outcome.Kind = model.OutcomeKind(kind)
		e.Outcome.Cause = model.KillCause(cause)
		e.Outcome.At, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var state, capability, startedAt string
	var finishedAt *string

	if err := row.Scan(&run.ID, &run.Script, &state, &capability, &run.Failures,
		&startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.State = model.RunState(state)
	c, err := model.ParseCapability(capability)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.Capability = c
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
