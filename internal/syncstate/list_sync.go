package syncstate

import (
	"time"

	"github.com/samber/mo"
)

// CalendarListSync is the bookkeeping of an account's calendar list. The list
// has no date window, so a cursor is all a sync needs.
type CalendarListSync struct {
	AccountID       string
	NextSyncAt      time.Time
	FailedSyncCount int
	SyncToken       mo.Option[string]
	LastSynced      mo.Option[time.Time]
}

func NewCalendarListSync(accountID string, now time.Time) CalendarListSync {
	return CalendarListSync{
		AccountID:  accountID,
		NextSyncAt: now,
		SyncToken:  mo.None[string](),
		LastSynced: mo.None[time.Time](),
	}
}

func (s CalendarListSync) Due(now time.Time) bool {
	return !s.NextSyncAt.After(now)
}

func (s CalendarListSync) NeedsFullSync() bool {
	return s.SyncToken.IsAbsent()
}

// CompleteFull is Complete; the list has no covered range to record.
func (s CalendarListSync) CompleteFull(cursor string, now time.Time, p Policy) CalendarListSync {
	return s.Complete(cursor, now, p)
}

func (s CalendarListSync) Complete(cursor string, now time.Time, p Policy) CalendarListSync {
	s.SyncToken = optionalToken(cursor)
	s.FailedSyncCount = 0
	s.LastSynced = mo.Some(now)
	s.NextSyncAt = now.Add(p.ListInterval)
	return s
}

func (s CalendarListSync) Fail(now time.Time, p Policy) CalendarListSync {
	s.FailedSyncCount++
	s.NextSyncAt = now.Add(p.backoff(p.ListInterval, s.FailedSyncCount))
	return s
}

func (s CalendarListSync) Reset(now time.Time) CalendarListSync {
	s.SyncToken = mo.None[string]()
	s.NextSyncAt = now
	return s
}

func (s CalendarListSync) ForceSync(now time.Time) CalendarListSync {
	s.NextSyncAt = now
	return s
}
