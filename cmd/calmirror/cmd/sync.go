package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theakshaypant/calmirror/internal/calsync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync now",
	Long: `Run one sync of the calendar list or of a single calendar right away,
without waiting for the scheduler. The sync must have been enabled first.`,
}

var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "Sync the calendar list of the account",
	Args:  cobra.NoArgs,
	RunE:  runSyncList,
}

var syncCalendarCmd = &cobra.Command{
	Use:   "calendar <calendar-id>",
	Short: "Sync the events of one calendar",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncCalendar,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start mirroring the account",
	Long: `Enable the calendar list sync of the account. Every calendar that is
selected and owned is enabled by the list sync. With --calendar only that
calendar is enabled.`,
	Args: cobra.NoArgs,
	RunE: runEnable,
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop mirroring the account",
	Long: `Disable the calendar list sync of the account and every calendar sync
with it, dropping their mirrored data. With --calendar only that calendar
is disabled.`,
	Args: cobra.NoArgs,
	RunE: runDisable,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncListCmd)
	syncCmd.AddCommand(syncCalendarCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)

	syncCmd.PersistentFlags().Bool("full", false, "discard the cursor and perform a full sync")
	enableCmd.Flags().String("calendar", "", "enable a single calendar")
	disableCmd.Flags().String("calendar", "", "disable a single calendar")
}

func runSyncList(cmd *cobra.Command, args []string) error {
	full, _ := cmd.Flags().GetBool("full")
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	outcome, err := a.orch.SyncCalendarList(cmd.Context(), acc.ID, full)
	if err != nil {
		return err
	}
	return reportOutcome(cmd, "calendar list of "+acc.ID, outcome)
}

func runSyncCalendar(cmd *cobra.Command, args []string) error {
	full, _ := cmd.Flags().GetBool("full")
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	outcome, err := a.orch.SyncCalendar(cmd.Context(), acc.ID, args[0], full)
	if err != nil {
		return err
	}
	return reportOutcome(cmd, "calendar "+args[0], outcome)
}

func reportOutcome(cmd *cobra.Command, what string, outcome calsync.Outcome) error {
	out := cmd.OutOrStdout()
	switch {
	case outcome.Skipped:
		fmt.Fprintf(out, "⏭️  %s is being synced elsewhere, skipped\n", what)
	case outcome.Failure != nil:
		if outcome.NeedsReauthorization() {
			fmt.Fprintln(out, "🔐 Credentials were rejected, run 'calmirror auth' again.")
		}
		return fmt.Errorf("sync %s: %w", what, outcome.Failure)
	case outcome.Full:
		fmt.Fprintf(out, "✅ %s: full sync complete\n", what)
	default:
		fmt.Fprintf(out, "✅ %s: incremental sync complete\n", what)
	}
	return nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	calendarID, _ := cmd.Flags().GetString("calendar")
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	if calendarID != "" {
		if err := a.orch.EnableCalendarSync(cmd.Context(), acc.ID, calendarID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Calendar %s of %s enabled\n", calendarID, acc.ID)
		return nil
	}
	if err := a.orch.EnableCalendarListSync(cmd.Context(), acc.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Mirroring enabled for %s\n", acc.ID)
	return nil
}

func runDisable(cmd *cobra.Command, args []string) error {
	calendarID, _ := cmd.Flags().GetString("calendar")
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	if calendarID != "" {
		if err := a.orch.DisableCalendarSync(cmd.Context(), acc.ID, calendarID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Calendar %s of %s disabled\n", calendarID, acc.ID)
		return nil
	}
	if err := a.orch.DisableCalendarListSync(cmd.Context(), acc.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Mirroring disabled for %s\n", acc.ID)
	return nil
}
