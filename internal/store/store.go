// Package store defines the persistence contracts of the mirror. The
// orchestrator, the channel manager and the notification receiver only see
// these interfaces; postgres and memory provide the backends.
package store

import (
	"context"
	"time"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

// TxFunc is the body of an atomic unit.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a mirror backend.
type Store interface {
	// Reads outside any unit never take locks.
	core.EventReader

	// InTx runs fn as one atomic unit: every write made through tx commits
	// when fn returns nil and is rolled back otherwise. Locks taken with
	// tx.TryLock are released when the unit ends.
	InTx(ctx context.Context, fn TxFunc) error

	// HealthCheck verifies that the backend is reachable.
	HealthCheck(ctx context.Context) error
	Close()
}

// Tx is the handle of an atomic unit.
type Tx interface {
	// TryLock takes the exclusive lock named key for the rest of the unit.
	// It never blocks: false means another unit holds it.
	TryLock(ctx context.Context, key string) (bool, error)

	// Savepoint runs fn in a nested scope. When fn fails, its writes are
	// discarded and the enclosing unit carries on; fn's error is returned.
	Savepoint(ctx context.Context, fn TxFunc) error

	Events() EventRepository
	CalendarLists() CalendarListRepository
	SyncStates() SyncStateRepository
	Channels() ChannelRepository
}

// EventRepository persists mirrored events.
type EventRepository interface {
	Upsert(ctx context.Context, events []core.Event) error
	Delete(ctx context.Context, keys []core.EventKey) error
	DeleteAllFor(ctx context.Context, accountID, calendarID string) error
	List(ctx context.Context, filter core.EventFilter) ([]core.Event, error)
}

// CalendarListRepository persists calendar list snapshots.
type CalendarListRepository interface {
	// Find returns ErrNotFound when the account has no stored list.
	Find(ctx context.Context, accountID string) (core.CalendarList, error)
	Save(ctx context.Context, list core.CalendarList) error
	Delete(ctx context.Context, accountID string) error
}

// SyncStateRepository persists sync bookkeeping.
type SyncStateRepository interface {
	FindCalendarList(ctx context.Context, accountID string) (syncstate.CalendarListSync, error)
	SaveCalendarList(ctx context.Context, s syncstate.CalendarListSync) error
	DeleteCalendarList(ctx context.Context, accountID string) error
	ListCalendarLists(ctx context.Context) ([]syncstate.CalendarListSync, error)

	FindCalendar(ctx context.Context, key syncstate.CalendarKey) (syncstate.CalendarSync, error)
	SaveCalendar(ctx context.Context, s syncstate.CalendarSync) error
	DeleteCalendar(ctx context.Context, key syncstate.CalendarKey) error
	// ListCalendars returns the calendar syncs of an account ordered by calendar id.
	ListCalendars(ctx context.Context, accountID string) ([]syncstate.CalendarSync, error)

	// DueCalendarLists returns at most limit list syncs with NextSyncAt <= now,
	// oldest first.
	DueCalendarLists(ctx context.Context, now time.Time, limit int) ([]syncstate.CalendarListSync, error)
	// DueCalendars returns at most limit calendar syncs with NextSyncAt <= now,
	// oldest first.
	DueCalendars(ctx context.Context, now time.Time, limit int) ([]syncstate.CalendarSync, error)
}

// ChannelRepository persists push channels.
type ChannelRepository interface {
	Find(ctx context.Context, id string) (core.Channel, error)
	Save(ctx context.Context, c core.Channel) error
	// FindByResource returns the live channels of a resource.
	FindByResource(ctx context.Context, accountID string, rt core.ResourceType, resourceID string) ([]core.Channel, error)
	// ListByAccount returns every channel of an account, closed ones included.
	ListByAccount(ctx context.Context, accountID string) ([]core.Channel, error)
	// ListExpiring returns the live channels expiring before t.
	ListExpiring(ctx context.Context, before time.Time) ([]core.Channel, error)
}

// ListLockKey names the lock guarding an account's calendar list sync.
func ListLockKey(accountID string) string {
	return "list:" + accountID
}

// CalendarLockKey names the lock guarding one calendar's sync.
func CalendarLockKey(accountID, calendarID string) string {
	return "calendar:" + accountID + ":" + calendarID
}
