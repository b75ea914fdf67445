package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarList_Merge(t *testing.T) {
	base := NewCalendarList("acc", []CalendarListEntry{
		{ID: "a", Summary: "Work", Selected: true, IsOwner: true},
		{ID: "b", Summary: "Home", Selected: true, IsOwner: true},
		{ID: "c", Summary: "Holidays", Selected: true},
	})

	merged := base.MergeEntries([]CalendarListEntry{
		{ID: "a", Summary: "Work", Selected: false, IsOwner: true},
		{ID: "b", Deleted: true},
		{ID: "d", Summary: "Team", Selected: true, IsOwner: true},
	})

	assert.Len(t, merged.Calendars, 3)
	assert.NotContains(t, merged.Calendars, "b")
	assert.False(t, merged.Calendars["a"].Selected, "diff wins")
	assert.Equal(t, []string{"d"}, merged.SyncableCalendars())
	assert.Len(t, base.Calendars, 3, "receiver is not modified")
	assert.Equal(t, []string{"a", "b"}, base.SyncableCalendars())
}

func TestCalendarList_Sorted(t *testing.T) {
	list := NewCalendarList("acc", []CalendarListEntry{
		{ID: "2", Summary: "b"},
		{ID: "1", Summary: "a"},
		{ID: "0", Summary: "b"},
	})

	var ids []string
	for _, e := range list.Sorted() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"1", "0", "2"}, ids)
}

func TestPartitionEvents(t *testing.T) {
	events := []Event{
		{AccountID: "acc", CalendarID: "cal", ID: "1", Status: EventConfirmed},
		{AccountID: "acc", CalendarID: "cal", ID: "2", Status: EventCancelled},
		{AccountID: "acc", CalendarID: "cal", ID: "3", Status: EventTentative},
		{AccountID: "acc", CalendarID: "cal", ID: "4", Status: "unknown"},
	}

	upserts, removals := PartitionEvents(events)

	assert.Len(t, upserts, 2)
	assert.Equal(t, []EventKey{
		{AccountID: "acc", CalendarID: "cal", EventID: "2"},
		{AccountID: "acc", CalendarID: "cal", EventID: "4"},
	}, removals)
}

func TestDateRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	r := NewDateRange(end, start)

	assert.Equal(t, start, r.Start, "bounds are swapped")
	assert.True(t, r.Encloses(r))
	assert.True(t, r.Contains(start))
	assert.False(t, r.Contains(end.Add(time.Second)))
	assert.False(t, r.Encloses(NewDateRange(start.Add(-time.Hour), end)))
}

func TestProviderError_Is(t *testing.T) {
	cause := errors.New("410 gone")
	err := fmt.Errorf("listing events: %w", NewProviderError(KindCursorInvalidated, "events.list", cause))

	assert.ErrorIs(t, err, ErrCursorInvalidated)
	assert.NotErrorIs(t, err, ErrCredentials)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindCursorInvalidated, KindOf(err))
	assert.Equal(t, KindTransient, KindOf(errors.New("boom")))

	creds := NewProviderError(KindCredentials, "calendarList.list", nil)
	assert.ErrorIs(t, creds, ErrCredentials)
	assert.Equal(t, "calendarList.list: credentials", creds.Error())
}
