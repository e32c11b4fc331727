package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old sessions from the local database",
	Long: `Delete sessions whose last update is older than the retention window,
including their tasks, assignments, tier results, and artifacts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.PurgeOldSessions(cleanupOlderThan)
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		fmt.Printf("Deleted %d session(s) older than %s.\n", n, cleanupOlderThan)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 30*24*time.Hour, "Retention window")
}
