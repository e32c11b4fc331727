package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cascade/internal/orchestrator"
	"cascade/internal/state"
)

// Exit codes reported to calling scripts.
const (
	exitOK       = 0
	exitFailed   = 1
	exitConfig   = 2
	exitNotFound = 3
	exitNotReady = 4
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Hierarchical multi-agent task orchestration",
	Long: `Cascade fans a task out to a tier of worker agents, aggregates their
outputs, and reduces them through mid and executive synthesis stages
into one final report.

Execution modes:
  parallel    all workers run concurrently (default)
  sequential  workers run one at a time, each seeing prior results
  hybrid      workers run in sequential batches, parallel within a batch

Sessions are persisted to SQLite, so status, cancellation, and result
retrieval work across processes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error chain to the documented exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrConfig):
		return exitConfig
	case errors.Is(err, state.ErrNotFound):
		return exitNotFound
	case errors.Is(err, orchestrator.ErrNotReady):
		return exitNotReady
	default:
		return exitFailed
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
