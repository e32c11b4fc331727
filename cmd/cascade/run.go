package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cascade/internal/config"
	"cascade/internal/orchestrator"
	"cascade/pkg/models"
)

var (
	runAgents      int
	runMode        string
	runProvider    string
	runModel       string
	runBatchSize   int
	runSession     string
	runOutput      string
	runNoMidSynth  bool
	runNoExecSynth bool
	runNoSynthesis bool
	runVerbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task through the worker and synthesis tiers",
	Long: `Run a task: fan it out to N worker agents, aggregate their outputs,
and reduce them through the enabled synthesis stages.

The command blocks until the task reaches a terminal state and prints
the final output on success. Ctrl-C requests cancellation; in-flight
work is given a grace period to wind down.

Continuations:
  Use --session <id> to append a follow-up task to a completed session.
  The prior task's final output is carried into the new workers' context.

Synthesis stages:
  Both stages run by default. --no-mid-synthesis or
  --no-executive-synthesis disable one; --no-synthesis disables both,
  in which case the raw worker outputs are concatenated deterministically.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().IntVarP(&runAgents, "agents", "n", 0, "Worker count (1-16, default from config)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Execution mode: parallel, sequential, or hybrid")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "Provider backend: anthropic or bedrock")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model identifier override")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "Hybrid batch width (default ceil(N/2))")
	runCmd.Flags().StringVar(&runSession, "session", "", "Continue a completed session by id")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the final output to a file instead of stdout")
	runCmd.Flags().BoolVar(&runNoMidSynth, "no-mid-synthesis", false, "Skip the mid synthesis stage")
	runCmd.Flags().BoolVar(&runNoExecSynth, "no-executive-synthesis", false, "Skip the executive synthesis stage")
	runCmd.Flags().BoolVar(&runNoSynthesis, "no-synthesis", false, "Skip both synthesis stages")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print per-tier progress")
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", orchestrator.ErrConfig, err)
	}

	task := buildTask(cfg, strings.Join(args, " "))

	engine, _, cleanup, err := buildEngine(cfg, runProvider, runModel)
	if err != nil {
		return err
	}
	defer cleanup()
	defer engine.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var session *models.Session
	if runSession != "" {
		session, err = engine.Continue(ctx, runSession, task)
	} else {
		session, err = engine.Submit(ctx, task)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Session %s: %d %s workers, provider %s\n",
		session.ID, task.Agents, task.Mode, task.Provider)

	// Ctrl-C requests cancellation; the engine grants in-flight work a
	// grace period before forcing the terminal state.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCancelling...")
		_ = engine.Cancel(session.ID)
	}()

	engine.Wait(session.ID)

	status, err := engine.Status(session.ID)
	if err != nil {
		return err
	}
	if runVerbose {
		printTiers(status)
	}

	switch status.State {
	case models.TaskCompleted:
		return emitResults(engine, session.ID, status.Degraded)
	case models.TaskCancelled:
		fmt.Println("Task cancelled.")
		return nil
	default:
		return fmt.Errorf("task failed: %s", status.Error)
	}
}

// buildTask assembles the task from flags with config-level defaults.
func buildTask(cfg *config.Config, description string) models.Task {
	agents := runAgents
	if agents == 0 {
		agents = cfg.Defaults.Agents
	}
	mode := runMode
	if mode == "" {
		mode = cfg.Defaults.Mode
	}
	batchSize := runBatchSize
	if batchSize == 0 {
		batchSize = cfg.Defaults.BatchSize
	}
	providerName := runProvider
	if providerName == "" {
		providerName = cfg.Provider.Name
	}

	return models.Task{
		Description:        description,
		Mode:               models.ExecutionMode(mode),
		Agents:             agents,
		BatchSize:          batchSize,
		Provider:           providerName,
		MidSynthesis:       !runNoMidSynth && !runNoSynthesis,
		ExecutiveSynthesis: !runNoExecSynth && !runNoSynthesis,
	}
}

// emitResults prints or writes the final output.
func emitResults(engine *orchestrator.Engine, sessionID string, degraded bool) error {
	text, err := engine.Results(sessionID)
	if err != nil {
		return err
	}
	if degraded {
		fmt.Fprintln(os.Stderr, "Warning: completed with partial worker success (degraded)")
	}
	if runOutput != "" {
		if err := os.WriteFile(runOutput, []byte(text), 0644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(text), runOutput)
		return nil
	}
	fmt.Println(text)
	return nil
}

// printTiers prints the per-tier breakdown.
func printTiers(status *orchestrator.Status) {
	for _, t := range status.Tiers {
		if t.Kind == models.StageWorker {
			fmt.Printf("  tier %d (%s): %d succeeded, %d failed (%s)\n",
				t.Tier, t.Kind, t.Succeeded, t.Failed, t.Completeness)
			continue
		}
		outcome := "succeeded"
		if t.Failed > 0 {
			outcome = "failed"
		}
		fmt.Printf("  tier %d (%s): %s\n", t.Tier, t.Kind, outcome)
	}
}
