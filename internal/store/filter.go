package store

import "github.com/theakshaypant/calmirror/internal/core"

// MatchEvent reports whether e satisfies filter. Events overlapping the
// window match; a zero bound is open.
func MatchEvent(e core.Event, filter core.EventFilter) bool {
	if filter.AccountID != "" && e.AccountID != filter.AccountID {
		return false
	}
	if len(filter.CalendarIDs) > 0 {
		found := false
		for _, id := range filter.CalendarIDs {
			if id == e.CalendarID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.End.IsZero() && !e.Start.Before(filter.End) {
		return false
	}
	if !filter.Start.IsZero() && !e.End.After(filter.Start) {
		return false
	}
	return true
}
