package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/taskhost/pkg/model"
)

// Driver ticks a Scheduler on a fixed interval.
type Driver interface {
	// Start begins the tick loop. Blocks until ctx is cancelled, Stop is
	// called, or the loop's exit condition is met.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the loop.
	Stop() error

	// Tick runs a single driver pass. Used for testing.
	Tick(ctx context.Context) error
}

// Journal persists outcomes.
type Journal interface {
	RecordOutcome(ctx context.Context, runID string, o model.Outcome) error
}

// Config holds loop configuration.
type Config struct {
	TickInterval time.Duration
	// ExitWhenIdle ends Start once no uncanceled task is left.
	ExitWhenIdle bool
	// MaxTicks ends Start after this many ticks. Zero means no limit.
	MaxTicks int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TickInterval: 16 * time.Millisecond}
}

// Loop implements Driver. It reports every outcome through the logger and
// the optional journal.
type Loop struct {
	sched   *Scheduler
	journal Journal
	runID   string
	config  Config
	logger  *slog.Logger

	ticks    atomic.Int64
	failures atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

var _ Driver = (*Loop)(nil)

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithJournal records outcomes in j under runID.
func WithJournal(j Journal, runID string) LoopOption {
	return func(l *Loop) {
		l.journal = j
		l.runID = runID
	}
}

// NewLoop creates a new driver loop for s.
func NewLoop(s *Scheduler, cfg Config, logger *slog.Logger, opts ...LoopOption) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	l := &Loop{
		sched:  s,
		config: cfg,
		logger: logger.With("component", "loop"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins the tick loop.
func (l *Loop) Start(ctx context.Context) error {
	defer close(l.doneCh)
	l.logger.Info("loop started", "tick_interval", l.config.TickInterval, "run_id", l.runID)
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("loop stopping (stop called)")
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
			if l.config.ExitWhenIdle && l.sched.Active() == 0 {
				if n := l.sched.Len(); n > 0 {
					l.logger.Info("loop idle", "canceled_tasks", n)
				} else {
					l.logger.Info("loop idle")
				}
				return nil
			}
			if l.config.MaxTicks > 0 && l.Ticks() >= l.config.MaxTicks {
				l.logger.Info("loop stopping (tick limit)", "ticks", l.Ticks())
				return nil
			}
		}
	}
}

// Stop shuts down the loop and waits for the current tick to finish.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

// Tick runs the scheduler once and reports its outcomes.
func (l *Loop) Tick(ctx context.Context) error {
	l.ticks.Add(1)
	return l.report(ctx, l.sched.Run())
}

// Shutdown kills every remaining task and reports the resulting outcomes.
func (l *Loop) Shutdown(ctx context.Context) error {
	return l.report(ctx, l.sched.Close())
}

func (l *Loop) report(ctx context.Context, outcomes []model.Outcome) error {
	var errs []error
	for _, o := range outcomes {
		switch o.Kind {
		case model.OutcomeFailed:
			l.failures.Add(1)
			l.logger.Error("task failed",
				"task", o.TaskID, "thread", o.Identity, "owner", o.Owner, "cause", o.Cause, "error", o.Message)
		default:
			l.logger.Debug("task killed", "task", o.TaskID, "thread", o.Identity, "cause", o.Cause)
		}
		if l.journal == nil {
			continue
		}
		if err := l.journal.RecordOutcome(ctx, l.runID, o); err != nil {
			errs = append(errs, fmt.Errorf("record outcome for task %d: %w", o.TaskID, err))
		}
	}
	return errors.Join(errs...)
}

// Ticks returns the number of ticks run so far.
func (l *Loop) Ticks() int {
	return int(l.ticks.Load())
}

// Failures returns the number of failure outcomes reported so far.
func (l *Loop) Failures() int {
	return int(l.failures.Load())
}
