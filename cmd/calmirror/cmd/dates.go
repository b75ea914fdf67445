package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theakshaypant/calmirror/internal/core"
)

// addWindowFlags registers the date range flags of mirror reads.
func addWindowFlags(cmd *cobra.Command, days int) {
	cmd.Flags().IntP("days", "d", days, "Number of days to read (ignored if --from/--to specified)")
	cmd.Flags().String("from", "", "Start date (YYYY-MM-DD, 'today', 'tomorrow', 'monday', etc.)")
	cmd.Flags().String("to", "", "End date, inclusive (YYYY-MM-DD, 'today', 'tomorrow', 'monday', etc.)")
	cmd.Flags().StringSliceP("calendar", "c", nil, "calendar ids to read (default: all mirrored)")
}

// windowFromFlags resolves --from, --to and --days against now.
func windowFromFlags(cmd *cobra.Command, now time.Time) (core.DateRange, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	days, _ := cmd.Flags().GetInt("days")

	start := now
	if fromStr != "" {
		var err error
		if start, err = parseDate(fromStr, now); err != nil {
			return core.DateRange{}, err
		}
	}
	end := start.AddDate(0, 0, days)
	if toStr != "" {
		to, err := parseDate(toStr, now)
		if err != nil {
			return core.DateRange{}, err
		}
		// End of day
		end = to.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return core.DateRange{}, fmt.Errorf("--to %s is before --from %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return core.NewDateRange(start, end), nil
}

// parseDate parses a date string in various formats
// Supports: YYYY-MM-DD, "today", "tomorrow", "yesterday", weekday names
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch s {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	weekdays := map[string]time.Weekday{
		"sunday": time.Sunday, "sun": time.Sunday,
		"monday": time.Monday, "mon": time.Monday,
		"tuesday": time.Tuesday, "tue": time.Tuesday,
		"wednesday": time.Wednesday, "wed": time.Wednesday,
		"thursday": time.Thursday, "thu": time.Thursday,
		"friday": time.Friday, "fri": time.Friday,
		"saturday": time.Saturday, "sat": time.Saturday,
	}

	// Handle "next <weekday>"
	dayName := strings.TrimPrefix(s, "next ")
	if wd, ok := weekdays[dayName]; ok {
		daysUntil := int(wd - today.Weekday())
		if daysUntil <= 0 {
			daysUntil += 7
		}
		return today.AddDate(0, 0, daysUntil), nil
	}

	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return t, nil
	}

	// MM-DD and MM/DD in the current year
	for _, layout := range []string{"01-02", "01/02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t.AddDate(now.Year(), 0, 0), nil
		}
	}

	if t, err := time.ParseInLocation("01/02/2006", s, now.Location()); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s (use YYYY-MM-DD, 'today', 'tomorrow', or weekday names)", s)
}
