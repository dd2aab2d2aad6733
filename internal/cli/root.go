package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/taskhost/internal/config"
	"github.com/me/taskhost/internal/logging"
)

var (
	flagServer    string
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	hostConfig config.HostConfig
	logger     *slog.Logger
	client     *Client
)

// defaultServer returns the default diagnostics URL, checking TASKHOST_SERVER first.
func defaultServer() string {
	if s := os.Getenv("TASKHOST_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the taskhost CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskhost",
		Short: "taskhost runs cooperative JavaScript task scripts",
		Long: `taskhost runs a JavaScript file on a cooperative task scheduler.
Scripts spawn, defer, delay and wait on tasks through the global task
library; blocking work (readFile, fetch, glob) runs on worker goroutines.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			l, err := logging.New(logging.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			hostConfig = cfg
			logger = l
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Diagnostics URL of a running host (or TASKHOST_SERVER env)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newListCmd(),
		newStatusCmd(),
		newCancelCmd(),
		newKillCmd(),
		newOutcomesCmd(),
		newRunsCmd(),
		newConfigCmd(),
	)

	return root
}
