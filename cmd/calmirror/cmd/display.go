package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/util"
)

const descriptionWidth = 60

// printEvent writes one mirrored event in the list layout.
func printEvent(w io.Writer, event core.Event, now time.Time) {
	indent := "  "

	// Title with type label
	if label := formatEventType(event.Type); label != "" {
		fmt.Fprintf(w, "%s[%s] %s\n", indent, label, event.Title)
	} else {
		fmt.Fprintf(w, "%s%s\n", indent, event.Title)
	}

	fmt.Fprintf(w, "%s📅 Calendar:    %s\n", indent, event.CalendarID)
	fmt.Fprintf(w, "%s🕐 When:        %s\n", indent, formatEventTime(event.Start, event.End, event.IsAllDay))
	if !event.IsAllDay {
		fmt.Fprintf(w, "%s⏱️  Duration:    %s\n", indent, formatDurationCompact(event.Duration()))
	}
	if event.Location != "" {
		fmt.Fprintf(w, "%s📍 Location:    %s\n", indent, event.Location)
	}
	if event.MeetingLink != "" {
		fmt.Fprintf(w, "%s📹 Join:        %s\n", indent, util.MakeHyperlink(event.MeetingLink, event.MeetingLink))
	}
	if event.Description != "" {
		desc := util.HTMLToText(event.Description, descriptionWidth)
		fmt.Fprintf(w, "%s📝 Description: %s\n", indent, util.TruncateText(firstLine(desc), descriptionWidth))
	}
	fmt.Fprintf(w, "%s📊 Response:    %s\n", indent, formatResponse(event.Response))
	if event.Status == core.EventTentative {
		fmt.Fprintf(w, "%s❔ Tentative\n", indent)
	}
	if event.InProgress(now) {
		fmt.Fprintf(w, "%s🟢 IN PROGRESS (%s remaining)\n", indent, formatDurationCompact(event.End.Sub(now)))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// formatDurationCompact formats a duration in a compact way
func formatDurationCompact(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		if hours > 0 {
			return fmt.Sprintf("%dd %dh", days, hours)
		}
		return fmt.Sprintf("%dd", days)
	}
	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func formatEventTime(start, end time.Time, isAllDay bool) string {
	localStart := start.Local()
	localEnd := end.Local()

	if isAllDay {
		// All-day ends are exclusive
		if end.Sub(start) <= 24*time.Hour {
			return localStart.Format("Mon, Jan 2") + " (all day)"
		}
		return fmt.Sprintf("%s - %s (all day)", localStart.Format("Mon, Jan 2"), localEnd.Add(-24*time.Hour).Format("Mon, Jan 2"))
	}

	if localStart.YearDay() == localEnd.YearDay() && localStart.Year() == localEnd.Year() {
		return fmt.Sprintf("%s, %s - %s", localStart.Format("Mon, Jan 2"), localStart.Format("3:04 PM"), localEnd.Format("3:04 PM"))
	}
	return fmt.Sprintf("%s - %s", localStart.Format("Mon, Jan 2 3:04 PM"), localEnd.Format("Mon, Jan 2 3:04 PM"))
}

func formatResponse(r core.ResponseStatus) string {
	switch r {
	case core.ResponseAccepted:
		return "Accepted ✓"
	case core.ResponseDeclined:
		return "Declined ✗"
	case core.ResponseTentative:
		return "Tentative ?"
	case core.ResponseAwaiting:
		return "Awaiting response"
	case core.ResponseNone:
		return "No response needed"
	default:
		return "Unknown"
	}
}

func formatEventType(t core.EventType) string {
	switch t {
	case core.TypeOutOfOffice:
		return "🏖️ OOO"
	case core.TypeFocusTime:
		return "🎯 Focus"
	case core.TypeWorkLocation:
		return "🏠 Location"
	default:
		return ""
	}
}

func truncate(s string, maxLen int) string {
	return util.TruncateText(s, maxLen)
}
