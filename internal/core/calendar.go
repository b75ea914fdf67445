package core

import "sort"

// CalendarListEntry describes one calendar the account can see.
type CalendarListEntry struct {
	ID       string
	Summary  string
	TimeZone string
	// Selected mirrors the "show in my list" toggle of the provider.
	Selected bool
	IsOwner  bool
	// Deleted marks a tombstone from an incremental list feed.
	Deleted bool
}

// Syncable reports whether events of this calendar are mirrored.
func (e CalendarListEntry) Syncable() bool {
	return e.Selected && e.IsOwner && !e.Deleted
}

// CalendarList is the per-account snapshot of calendars.
type CalendarList struct {
	AccountID string
	Calendars map[string]CalendarListEntry
}

// NewCalendarList builds a snapshot from a sequence of entries, later entries
// overriding earlier ones with the same id.
func NewCalendarList(accountID string, entries []CalendarListEntry) CalendarList {
	list := CalendarList{AccountID: accountID, Calendars: make(map[string]CalendarListEntry, len(entries))}
	for _, e := range entries {
		list.Calendars[e.ID] = e
	}
	return list.withoutTombstones()
}

// Merge applies diff on top of l key by key. Entries from diff win; tombstones
// remove the calendar.
func (l CalendarList) Merge(diff CalendarList) CalendarList {
	merged := CalendarList{AccountID: l.AccountID, Calendars: make(map[string]CalendarListEntry, len(l.Calendars)+len(diff.Calendars))}
	if merged.AccountID == "" {
		merged.AccountID = diff.AccountID
	}
	for id, e := range l.Calendars {
		merged.Calendars[id] = e
	}
	for id, e := range diff.Calendars {
		merged.Calendars[id] = e
	}
	return merged.withoutTombstones()
}

// MergeEntries is Merge for a raw incremental feed.
func (l CalendarList) MergeEntries(entries []CalendarListEntry) CalendarList {
	diff := CalendarList{AccountID: l.AccountID, Calendars: make(map[string]CalendarListEntry, len(entries))}
	for _, e := range entries {
		diff.Calendars[e.ID] = e
	}
	return l.Merge(diff)
}

// SyncableCalendars returns the sorted ids of calendars whose events are mirrored.
func (l CalendarList) SyncableCalendars() []string {
	var ids []string
	for id, e := range l.Calendars {
		if e.Syncable() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the entries ordered by summary then id, for display.
func (l CalendarList) Sorted() []CalendarListEntry {
	entries := make([]CalendarListEntry, 0, len(l.Calendars))
	for _, e := range l.Calendars {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Summary != entries[j].Summary {
			return entries[i].Summary < entries[j].Summary
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

func (l CalendarList) withoutTombstones() CalendarList {
	for id, e := range l.Calendars {
		if e.Deleted {
			delete(l.Calendars, id)
		}
	}
	return l
}
