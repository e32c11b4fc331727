package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cascade/internal/orchestrator"
)

var aggregateOutput string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <session-id>",
	Short: "Print a completed session's final output",
	Long: `Retrieve the final output of a completed session.

The output is the last successful synthesis artifact, or the
deterministic concatenation of worker outputs when no synthesis stage
ran. Repeated invocations over the same session produce identical bytes.

A session that has not completed yet exits with code 4.`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateOutput, "output", "o", "", "Write the output to a file instead of stdout")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := store.LoadSession(args[0])
	if err != nil {
		return err
	}

	text, err := orchestrator.FinalOutput(session)
	if err != nil {
		return err
	}

	if aggregateOutput != "" {
		if err := os.WriteFile(aggregateOutput, []byte(text), 0644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(text), aggregateOutput)
		return nil
	}
	fmt.Println(text)
	return nil
}
