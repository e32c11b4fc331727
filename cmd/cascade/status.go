package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cascade/internal/orchestrator"
	"cascade/internal/signals"
	"cascade/internal/state"
	"cascade/pkg/models"
)

var statusCancel bool

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show session state",
	Long: `Display session state from the local database.

Without arguments, lists recent sessions. With a session id, shows the
task's state machine position and per-tier progress.

Use --cancel with a session id to request cancellation. Cancelling a
session that already finished is acknowledged without effect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusCancel, "cancel", false, "Cancel the session")
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		if statusCancel {
			return fmt.Errorf("%w: --cancel requires a session id", orchestrator.ErrConfig)
		}
		return listSessions(store)
	}

	sessionID := args[0]
	session, err := store.LoadSession(sessionID)
	if err != nil {
		return err
	}

	if statusCancel {
		return cancelSession(session)
	}

	displayStatus(orchestrator.StatusOf(session))
	return nil
}

// cancelSession drops a cancel signal for the running process to pick
// up. A terminal session is acknowledged as already finished.
func cancelSession(session *models.Session) error {
	if session.Status.Terminal() {
		fmt.Printf("Session %s already %s.\n", session.ID, session.Status)
		return nil
	}

	mgr, err := signals.NewManager(filepath.Dir(statePath()))
	if err != nil {
		return fmt.Errorf("open signal directory: %w", err)
	}
	defer mgr.Close()

	if err := mgr.SendCancel(session.ID); err != nil {
		return fmt.Errorf("send cancel signal: %w", err)
	}
	fmt.Printf("Cancellation requested for session %s.\n", session.ID)
	return nil
}

// listSessions prints recent sessions, newest first.
func listSessions(store state.Store) error {
	sessions, err := store.ListSessions(10)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions. Run 'cascade run <task>' to start.")
		return nil
	}

	fmt.Println(headerStyle.Render("Recent Sessions"))
	for _, s := range sessions {
		desc := s.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Printf("  %s  %-11s  %s  (%s ago)\n",
			s.ID, colorStatus(string(s.Status)), desc, formatDuration(time.Since(s.UpdatedAt)))
	}
	return nil
}

// displayStatus prints one session's detail view.
func displayStatus(st *orchestrator.Status) {
	fmt.Println(headerStyle.Render("Session " + st.SessionID))
	fmt.Printf("  Task:    %s\n", st.Description)
	fmt.Printf("  Mode:    %s (%d workers)\n", st.Mode, st.Agents)
	fmt.Printf("  State:   %s\n", colorStatus(string(st.State)))
	if st.Degraded {
		fmt.Printf("  Quality: %s\n", color.YellowString("degraded"))
	}
	if st.Error != "" {
		fmt.Printf("  Error:   %s\n", st.Error)
	}
	if st.CompletedAt != nil {
		fmt.Printf("  Took:    %s\n", formatDuration(st.CompletedAt.Sub(st.CreatedAt)))
	} else {
		fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(st.CreatedAt)))
	}

	if len(st.Tiers) == 0 {
		return
	}
	fmt.Println("  Tiers:")
	for _, t := range st.Tiers {
		if t.Kind == models.StageWorker {
			fmt.Printf("    %d %-9s  %d succeeded, %d failed (%s)\n",
				t.Tier, t.Kind, t.Succeeded, t.Failed, t.Completeness)
			continue
		}
		outcome := color.GreenString("succeeded")
		if t.Failed > 0 {
			outcome = color.RedString("failed")
		}
		fmt.Printf("    %d %-9s  %s\n", t.Tier, t.Kind, outcome)
	}
}

// colorStatus renders a status word with the conventional color.
func colorStatus(s string) string {
	switch s {
	case "completed":
		return color.GreenString(s)
	case "failed":
		return color.RedString(s)
	case "cancelled":
		return color.YellowString(s)
	case "active", "dispatching", "aggregating", "synthesizing":
		return color.CyanString(s)
	default:
		return s
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
