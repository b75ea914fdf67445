package calsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"

	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

// AccountStatus is a snapshot of an account's sync bookkeeping.
type AccountStatus struct {
	AccountID string
	List      mo.Option[syncstate.CalendarListSync]
	Calendars []syncstate.CalendarSync
}

// Status reads the sync states of an account without locking them.
func (o *Orchestrator) Status(ctx context.Context, accountID string) (AccountStatus, error) {
	status := AccountStatus{AccountID: accountID, List: mo.None[syncstate.CalendarListSync]()}
	err := o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.SyncStates().FindCalendarList(ctx, accountID)
		switch {
		case err == nil:
			status.List = mo.Some(list)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		status.Calendars, err = tx.SyncStates().ListCalendars(ctx, accountID)
		return err
	})
	if err != nil {
		return AccountStatus{}, fmt.Errorf("read status of %s: %w", accountID, err)
	}
	return status, nil
}

// ForceSync makes a sync due now without touching its cursor. An empty
// calendarID targets the calendar list.
func (o *Orchestrator) ForceSync(ctx context.Context, accountID, calendarID string) error {
	return o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := o.clock.Now()
		if calendarID == "" {
			s, err := tx.SyncStates().FindCalendarList(ctx, accountID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("calendar list of %s: %w", accountID, ErrNotEnabled)
			} else if err != nil {
				return err
			}
			return tx.SyncStates().SaveCalendarList(ctx, s.ForceSync(now))
		}
		key := syncstate.CalendarKey{AccountID: accountID, CalendarID: calendarID}
		s, err := tx.SyncStates().FindCalendar(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("calendar %s: %w", key, ErrNotEnabled)
		} else if err != nil {
			return err
		}
		return tx.SyncStates().SaveCalendar(ctx, s.ForceSync(now))
	})
}
