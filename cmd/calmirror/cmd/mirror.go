package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/export"
	"github.com/theakshaypant/calmirror/internal/store"
)

var calendarsCmd = &cobra.Command{
	Use:     "calendars",
	Aliases: []string{"cal", "cals"},
	Short:   "List the mirrored calendar list",
	Long: `List the calendars of the account as of the last calendar list sync.
Calendars marked with ● are syncable and mirrored.`,
	Args: cobra.NoArgs,
	RunE: runCalendars,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show mirrored events",
	Long: `Show the mirrored events of a date range. The mirror is read as is; a
warning is printed when a calendar was not synced recently or its last full
sync does not cover the range.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export mirrored events as iCalendar",
	Long: `Write the mirrored events of a date range as an .ics file that any
calendar application can import.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(calendarsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(exportCmd)

	addWindowFlags(eventsCmd, 7)
	addWindowFlags(exportCmd, 30)
	exportCmd.Flags().StringP("output", "o", "-", "output file, - for stdout")
}

func runCalendars(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}

	var list core.CalendarList
	err = a.store.InTx(cmd.Context(), func(ctx context.Context, tx store.Tx) error {
		var err error
		list, err = tx.CalendarLists().Find(ctx, acc.ID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no calendar list mirrored for %s\nRun 'calmirror enable' and 'calmirror sync list' first", acc.ID)
	} else if err != nil {
		return err
	}

	entries := make([]core.CalendarListEntry, 0, len(list.Calendars))
	for _, e := range list.Calendars {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Summary < entries[j].Summary })

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "📅 Calendars of", acc.ID)
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	for _, e := range entries {
		marker := "○"
		if e.Syncable() {
			marker = "●"
		}
		fmt.Fprintf(out, "\n  %s %s\n", marker, e.Summary)
		fmt.Fprintf(out, "    ID: %s\n", e.ID)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total: %d calendars\n", len(entries))
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	now := time.Now()
	window, err := windowFromFlags(cmd, now)
	if err != nil {
		return err
	}
	calendarIDs, _ := cmd.Flags().GetStringSlice("calendar")

	events, err := a.store.ListEvents(cmd.Context(), core.EventFilter{
		AccountID:   acc.ID,
		Start:       window.Start,
		End:         window.End,
		CalendarIDs: calendarIDs,
	})
	if err != nil {
		return fmt.Errorf("read mirror: %w", err)
	}

	out := cmd.OutOrStdout()
	stale, err := staleCalendars(cmd.Context(), a, acc.ID, calendarIDs, window, now)
	if err != nil {
		return err
	}
	for _, id := range stale {
		fmt.Fprintf(out, "⚠️  %s may be out of date\n", id)
	}

	fmt.Fprintf(out, "📅 Events from %s to %s:\n", window.Start.Format("Jan 2"), window.End.Format("Jan 2"))
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}
	for _, event := range events {
		fmt.Fprintln(out)
		printEvent(out, event, now)
	}
	fmt.Fprintln(out, "─────────────────────────────────────────────────")
	fmt.Fprintf(out, "Total: %d events\n", len(events))
	return nil
}

// staleCalendars returns the calendars whose mirror cannot vouch for window.
func staleCalendars(ctx context.Context, a *app, accountID string, only []string, window core.DateRange, now time.Time) ([]string, error) {
	status, err := a.orch.Status(ctx, accountID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		wanted[id] = true
	}
	var stale []string
	for _, s := range status.Calendars {
		if len(wanted) > 0 && !wanted[s.CalendarID] {
			continue
		}
		if !s.IsFresh(window, now, a.orch.Policy()) {
			stale = append(stale, s.CalendarID)
		}
	}
	return stale, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	acc, err := a.selectedAccount()
	if err != nil {
		return err
	}
	window, err := windowFromFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	calendarIDs, _ := cmd.Flags().GetStringSlice("calendar")

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := export.Export(cmd.Context(), a.store, core.EventFilter{
		AccountID:   acc.ID,
		Start:       window.Start,
		End:         window.End,
		CalendarIDs: calendarIDs,
	}, w, export.Options{Name: acc.ID})
	if err != nil {
		return err
	}
	if output != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "📁 %d events written to %s\n", n, output)
	}
	return nil
}
