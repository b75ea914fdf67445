package syncstate

import (
	"time"

	"github.com/samber/mo"

	"github.com/theakshaypant/calmirror/internal/core"
)

// CalendarKey identifies the sync state of one calendar.
type CalendarKey struct {
	AccountID  string
	CalendarID string
}

func (k CalendarKey) String() string {
	return k.AccountID + "/" + k.CalendarID
}

// CalendarSync is the bookkeeping of one mirrored calendar.
type CalendarSync struct {
	AccountID       string
	CalendarID      string
	NextSyncAt      time.Time
	FailedSyncCount int
	SyncToken       mo.Option[string]
	SyncedRange     mo.Option[core.DateRange]
	LastSynced      mo.Option[time.Time]
}

// NewCalendarSync returns a state due immediately, with no cursor.
func NewCalendarSync(key CalendarKey, now time.Time) CalendarSync {
	return CalendarSync{
		AccountID:   key.AccountID,
		CalendarID:  key.CalendarID,
		NextSyncAt:  now,
		SyncToken:   mo.None[string](),
		SyncedRange: mo.None[core.DateRange](),
		LastSynced:  mo.None[time.Time](),
	}
}

func (s CalendarSync) Key() CalendarKey {
	return CalendarKey{AccountID: s.AccountID, CalendarID: s.CalendarID}
}

// Due reports whether the scheduler should run the sync.
func (s CalendarSync) Due(now time.Time) bool {
	return !s.NextSyncAt.After(now)
}

// NeedsFullSync is true without a cursor, or when the range covered by the
// last full sync no longer encloses the mandatory window.
func (s CalendarSync) NeedsFullSync(now time.Time, p Policy) bool {
	if s.SyncToken.IsAbsent() {
		return true
	}
	covered, ok := s.SyncedRange.Get()
	if !ok {
		return true
	}
	return !covered.Encloses(p.MandatoryWindow(now))
}

// IsFresh reports whether the mirror can answer for window without a sync.
func (s CalendarSync) IsFresh(window core.DateRange, now time.Time, p Policy) bool {
	last, ok := s.LastSynced.Get()
	if !ok || now.Sub(last) > p.FreshFor {
		return false
	}
	covered, ok := s.SyncedRange.Get()
	return ok && covered.Encloses(window)
}

// CompleteFull records a successful full sync of covered.
func (s CalendarSync) CompleteFull(cursor string, covered core.DateRange, now time.Time, p Policy) CalendarSync {
	s = s.Complete(cursor, now, p)
	s.SyncedRange = mo.Some(covered)
	return s
}

// Complete records a successful incremental sync. The range is untouched.
func (s CalendarSync) Complete(cursor string, now time.Time, p Policy) CalendarSync {
	s.SyncToken = optionalToken(cursor)
	s.FailedSyncCount = 0
	s.LastSynced = mo.Some(now)
	s.NextSyncAt = now.Add(p.CalendarInterval)
	return s
}

// Fail counts a failed attempt and backs off quadratically.
func (s CalendarSync) Fail(now time.Time, p Policy) CalendarSync {
	s.FailedSyncCount++
	s.NextSyncAt = now.Add(p.backoff(p.CalendarInterval, s.FailedSyncCount))
	return s
}

// Reset drops the cursor and range so the next sync is a full one, due now.
func (s CalendarSync) Reset(now time.Time) CalendarSync {
	s.SyncToken = mo.None[string]()
	s.SyncedRange = mo.None[core.DateRange]()
	s.NextSyncAt = now
	return s
}

// ForceSync makes the state due now without touching the cursor.
func (s CalendarSync) ForceSync(now time.Time) CalendarSync {
	s.NextSyncAt = now
	return s
}

// An empty cursor from the provider means it handed out none.
func optionalToken(cursor string) mo.Option[string] {
	if cursor == "" {
		return mo.None[string]()
	}
	return mo.Some(cursor)
}
