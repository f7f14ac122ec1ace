// Package cli implements the qhaul command line interface. Commands
// run the compile pipeline in-process; no server is required.
package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/qhaul/internal/logging"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagDBPath    string
	flagLogDir    string

	logger *slog.Logger
)

// defaultDBPath returns the job database location, checking the
// QHAUL_DB env var first.
func defaultDBPath() string {
	if p := os.Getenv("QHAUL_DB"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "qhaul.db"
	}
	return filepath.Join(home, ".qhaul", "qhaul.db")
}

// defaultLogDir returns the per-job log directory.
func defaultLogDir() string {
	if p := os.Getenv("QHAUL_LOG_DIR"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "qhaul-logs"
	}
	return filepath.Join(home, ".qhaul", "logs")
}

// NewRootCmd creates the root cobra command for the qhaul CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qhaul",
		Short: "qhaul — quantum circuit compiler and job runner",
		Long:  "qhaul compiles circuit descriptions, optimizes them, and runs them on registered devices.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagDBPath, "db", defaultDBPath(), "Job database path (or QHAUL_DB env)")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", defaultLogDir(), "Per-job log directory (or QHAUL_LOG_DIR env)")

	root.AddCommand(
		newCompileCmd(),
		newRunCmd(),
		newJobsCmd(),
		newShowCmd(),
		newLogsCmd(),
		newDevicesCmd(),
	)

	return root
}
