package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/me/taskhost/internal/config"
	"github.com/me/taskhost/internal/executor"
	"github.com/me/taskhost/internal/jshost"
	"github.com/me/taskhost/internal/metrics"
	"github.com/me/taskhost/internal/scheduler"
	"github.com/me/taskhost/internal/server"
	"github.com/me/taskhost/internal/store"
	"github.com/me/taskhost/internal/ui"
	"github.com/me/taskhost/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		tick         time.Duration
		maxTicks     int
		maxWorkers   int
		execType     string
		dbPath       string
		addr         string
		capability   string
		fetchTimeout time.Duration
		baseDir      string
	)

	cmd := &cobra.Command{
		Use:   "run <script.js>",
		Short: "Run a script until no live task is left",
		Long: `Runs a JavaScript file as the root task and ticks the scheduler until
every task has finished (canceled tasks do not keep the host alive), the
tick limit is reached, or the process is interrupted.

Exits non-zero when any task reported a failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := hostConfig
			flags := cmd.Flags()
			if flags.Changed("tick") {
				cfg.TickInterval = tick
			}
			if flags.Changed("max-ticks") {
				cfg.MaxTicks = maxTicks
			}
			if flags.Changed("max-workers") {
				cfg.MaxWorkers = maxWorkers
			}
			if flags.Changed("executor") {
				cfg.Executor = execType
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("fetch-timeout") {
				cfg.FetchTimeout = fetchTimeout
			}
			if flags.Changed("base-dir") {
				cfg.BaseDir = baseDir
			}
			if flags.Changed("capability") {
				c, err := model.ParseCapability(capability)
				if err != nil {
					return err
				}
				cfg.Capability = c
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runScript(ctx, cfg, args[0], cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %s (ticks=%d, failures=%d)\n", res.RunID, res.State, res.Ticks, res.Failures)
			if res.Failures > 0 {
				return fmt.Errorf("%d task failure(s)", res.Failures)
			}
			return nil
		},
	}

	def := config.DefaultHostConfig()
	cmd.Flags().DurationVar(&tick, "tick", def.TickInterval, "Scheduler tick interval")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "Stop after this many ticks (0 = no limit)")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Concurrent worker jobs (0 = unlimited)")
	cmd.Flags().StringVar(&execType, "executor", def.Executor, "Worker executor (goroutine, inline)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite outcome journal path (empty disables the journal)")
	cmd.Flags().StringVar(&addr, "addr", "", "Diagnostics API listen address, e.g. :8080 (empty disables)")
	cmd.Flags().StringVar(&capability, "capability", def.Capability.String(), "Capability tier of the root task")
	cmd.Flags().DurationVar(&fetchTimeout, "fetch-timeout", def.FetchTimeout, "Timeout of each fetch() call")
	cmd.Flags().StringVar(&baseDir, "base-dir", def.BaseDir, "Directory for relative readFile/glob paths")

	return cmd
}

// runResult summarizes a finished run.
type runResult struct {
	RunID    string
	State    model.RunState
	Ticks    int
	Failures int
}

// runScript wires the host, scheduler loop, journal, metrics and
// diagnostics server, then runs path until the loop exits.
func runScript(ctx context.Context, cfg config.HostConfig, path string, stdout io.Writer, logger *slog.Logger) (*runResult, error) {
	runID := "run_" + uuid.New().String()
	logger = logger.With("run_id", runID)

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	exp, err := metrics.NewExporter("taskhost", reg, metrics.Options{})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	exec, err := executor.NewDefaultRegistry(cfg.MaxWorkers, logger).Get(cfg.Executor)
	if err != nil {
		return nil, err
	}
	h, err := jshost.New(jshost.Config{
		FetchTimeout: cfg.FetchTimeout,
		BaseDir:      cfg.BaseDir,
		Output:       stdout,
	}, logger,
		scheduler.WithExecutor(exec),
		scheduler.WithMetrics(exp),
		scheduler.WithCapability(cfg.Capability),
		scheduler.WithOwner(filepath.Base(path)),
	)
	if err != nil {
		return nil, err
	}
	sched := h.Scheduler()

	run := &model.Run{
		ID:         runID,
		Script:     path,
		State:      model.RunStateRunning,
		Capability: cfg.Capability,
		StartedAt:  time.Now().UTC(),
	}

	var st store.Store
	var loopOpts []scheduler.LoopOption
	if cfg.DBPath != "" {
		sqlite, err := openStore(ctx, cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		defer sqlite.Close()
		if err := sqlite.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		st = sqlite
		loopOpts = append(loopOpts, scheduler.WithJournal(sqlite, runID))
	}

	loop := scheduler.NewLoop(sched, scheduler.Config{
		TickInterval: cfg.TickInterval,
		ExitWhenIdle: true,
		MaxTicks:     cfg.MaxTicks,
	}, logger, loopOpts...)

	if cfg.Addr != "" {
		uiOpts := []ui.Option{ui.WithRunID(runID), ui.WithBasePath("/ui")}
		if st != nil {
			uiOpts = append(uiOpts, ui.WithStore(st))
		}
		srvOpts := []server.Option{
			server.WithRunID(runID),
			server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			server.WithUI(ui.New(sched, logger, uiOpts...).Handler()),
		}
		if st != nil {
			srvOpts = append(srvOpts, server.WithStore(st))
		}
		srv := server.New(sched, logger, srvOpts...)
		srvCtx, stopSrv := context.WithCancel(ctx)
		defer stopSrv()
		go func() {
			if err := srv.ListenAndServe(srvCtx, cfg.Addr); err != nil {
				logger.Error("server failed", "error", err)
			}
		}()
	}

	// Abort a script stuck inside a single resumption when interrupted.
	stopInterrupt := context.AfterFunc(ctx, func() { h.Interrupt("interrupted") })
	defer stopInterrupt()

	startErr := func() error {
		if _, err := h.RunFile(path); err != nil {
			return err
		}
		if err := loop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}()

	if err := loop.Shutdown(context.Background()); err != nil {
		logger.Error("journal teardown outcomes", "error", err)
	}
	if pool, ok := exec.(*executor.GoroutineExecutor); ok {
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Wait(waitCtx); err != nil {
			logger.Warn("worker jobs still running at exit", "pending", pool.Pending())
		}
	}

	res := &runResult{RunID: runID, Ticks: loop.Ticks(), Failures: loop.Failures()}
	switch {
	case startErr != nil || res.Failures > 0:
		res.State = model.RunStateFailed
	case ctx.Err() != nil:
		res.State = model.RunStateCancelled
	default:
		res.State = model.RunStateCompleted
	}

	if st != nil {
		finished := time.Now().UTC()
		run.State = res.State
		run.Failures = res.Failures
		run.FinishedAt = &finished
		if err := st.UpdateRun(context.Background(), run); err != nil {
			logger.Error("record run result", "error", err)
		}
	}
	if startErr != nil {
		return nil, startErr
	}
	return res, nil
}

func openStore(ctx context.Context, path string, logger *slog.Logger) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(path); path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return st, nil
}
