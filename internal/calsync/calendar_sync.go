package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/metrics"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

const resourceCalendar = "calendar"

// ErrCalendarBusy is returned when a calendar cannot be enabled or disabled
// because a sync of that calendar holds its lock.
var ErrCalendarBusy = errors.New("calendar sync in progress")

// lockCalendar takes the calendar's lock for the rest of the unit.
func (o *Orchestrator) lockCalendar(ctx context.Context, tx store.Tx, accountID, calendarID string) error {
	locked, err := tx.TryLock(ctx, store.CalendarLockKey(accountID, calendarID))
	if err != nil {
		return err
	}
	if !locked {
		metrics.SyncSkipped(resourceCalendar)
		return fmt.Errorf("%w: %s/%s", ErrCalendarBusy, accountID, calendarID)
	}
	return nil
}

// EnableCalendarSync makes the calendar's sync due now, creating its state if
// needed.
func (o *Orchestrator) EnableCalendarSync(ctx context.Context, accountID, calendarID string) error {
	return o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return o.EnableCalendarSyncTx(ctx, tx, accountID, calendarID)
	})
}

func (o *Orchestrator) EnableCalendarSyncTx(ctx context.Context, tx store.Tx, accountID, calendarID string) error {
	if err := o.lockCalendar(ctx, tx, accountID, calendarID); err != nil {
		return err
	}
	key := syncstate.CalendarKey{AccountID: accountID, CalendarID: calendarID}
	now := o.clock.Now()
	state, err := tx.SyncStates().FindCalendar(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = syncstate.NewCalendarSync(key, now)
	case err != nil:
		return err
	default:
		state = state.ForceSync(now)
	}
	if err := tx.SyncStates().SaveCalendar(ctx, state); err != nil {
		return err
	}
	o.logger.Info("calendar sync enabled", "account", accountID, "calendar", calendarID)
	return nil
}

// DisableCalendarSync purges the calendar's mirrored events and drops its
// state. It fails with ErrCalendarBusy while the calendar is syncing.
func (o *Orchestrator) DisableCalendarSync(ctx context.Context, accountID, calendarID string) error {
	return o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return o.DisableCalendarSyncTx(ctx, tx, accountID, calendarID)
	})
}

func (o *Orchestrator) DisableCalendarSyncTx(ctx context.Context, tx store.Tx, accountID, calendarID string) error {
	if err := o.lockCalendar(ctx, tx, accountID, calendarID); err != nil {
		return err
	}
	if err := tx.Events().DeleteAllFor(ctx, accountID, calendarID); err != nil {
		return err
	}
	key := syncstate.CalendarKey{AccountID: accountID, CalendarID: calendarID}
	if err := tx.SyncStates().DeleteCalendar(ctx, key); err != nil {
		return err
	}
	metrics.ForgetFailedCount(accountID, resourceCalendar, calendarID)
	o.logger.Info("calendar sync disabled", "account", accountID, "calendar", calendarID)
	return nil
}

// SyncCalendar syncs the events of one calendar. A full sync replaces the
// mirrored events of the rolling window; an incremental one applies the
// changes since the cursor.
func (o *Orchestrator) SyncCalendar(ctx context.Context, accountID, calendarID string, forceFull bool) (Outcome, error) {
	var out Outcome
	err := o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = o.SyncCalendarTx(ctx, tx, accountID, calendarID, forceFull)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	o.flagReauthorization(ctx, accountID, out.Failure)
	return out, nil
}

// SyncCalendarTx is SyncCalendar inside the caller's unit. The caller is
// responsible for flagging credential failures.
func (o *Orchestrator) SyncCalendarTx(ctx context.Context, tx store.Tx, accountID, calendarID string, forceFull bool) (Outcome, error) {
	locked, err := tx.TryLock(ctx, store.CalendarLockKey(accountID, calendarID))
	if err != nil {
		return Outcome{}, err
	}
	if !locked {
		metrics.SyncSkipped(resourceCalendar)
		o.logger.Debug("calendar sync already running", "account", accountID, "calendar", calendarID)
		return Outcome{Skipped: true}, nil
	}

	key := syncstate.CalendarKey{AccountID: accountID, CalendarID: calendarID}
	now := o.clock.Now()
	state, err := tx.SyncStates().FindCalendar(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		state = syncstate.NewCalendarSync(key, now)
	} else if err != nil {
		return Outcome{}, err
	}

	full := forceFull || state.NeedsFullSync(now, o.policy)
	start := o.clock.Now()
	var next syncstate.CalendarSync
	attemptErr := tx.Savepoint(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if full {
			next, err = o.fullCalendarSync(ctx, tx, state, now)
		} else {
			next, err = o.incrementalCalendarSync(ctx, tx, state, now)
		}
		return err
	})

	failure, err := splitAttempt(attemptErr)
	if err != nil {
		return Outcome{}, err
	}
	if failure != nil {
		if errors.Is(failure, core.ErrCursorInvalidated) {
			next = state.Reset(now)
		} else {
			next = state.Fail(now, o.policy)
		}
	}
	if err := tx.SyncStates().SaveCalendar(ctx, next); err != nil {
		return Outcome{}, err
	}

	metrics.SetFailedCount(accountID, resourceCalendar, calendarID, next.FailedSyncCount)
	if failure != nil {
		metrics.ObserveSync(resourceCalendar, syncMode(full), core.KindOf(failure).String(), o.clock.Now().Sub(start))
		o.logger.Warn("calendar sync failed",
			"account", accountID, "calendar", calendarID, "mode", syncMode(full), "kind", core.KindOf(failure).String(),
			"failed_count", next.FailedSyncCount, "next_sync_at", next.NextSyncAt, "error", failure)
		return Outcome{Full: full, Failure: failure}, nil
	}
	metrics.ObserveSync(resourceCalendar, syncMode(full), "ok", o.clock.Now().Sub(start))
	o.logger.Info("calendar synced", "account", accountID, "calendar", calendarID, "mode", syncMode(full),
		"next_sync_at", next.NextSyncAt)
	return Outcome{Full: full}, nil
}

func (o *Orchestrator) fullCalendarSync(ctx context.Context, tx store.Tx, state syncstate.CalendarSync, now time.Time) (syncstate.CalendarSync, error) {
	p, err := o.provider(ctx, state.AccountID)
	if err != nil {
		return state, err
	}
	window := o.policy.Window(now)
	events, cursor, err := fetchEvents(ctx, p, state.Key(), core.EventsRequest{
		CalendarID: state.CalendarID,
		Range:      mo.Some(window),
	})
	if err != nil {
		return state, providerFailure(err)
	}

	live, _ := core.PartitionEvents(events)
	if err := tx.Events().DeleteAllFor(ctx, state.AccountID, state.CalendarID); err != nil {
		return state, err
	}
	if err := tx.Events().Upsert(ctx, live); err != nil {
		return state, err
	}
	return state.CompleteFull(cursor, window, now, o.policy), nil
}

func (o *Orchestrator) incrementalCalendarSync(ctx context.Context, tx store.Tx, state syncstate.CalendarSync, now time.Time) (syncstate.CalendarSync, error) {
	p, err := o.provider(ctx, state.AccountID)
	if err != nil {
		return state, err
	}
	events, cursor, err := fetchEvents(ctx, p, state.Key(), core.EventsRequest{
		CalendarID: state.CalendarID,
		SyncToken:  state.SyncToken.OrEmpty(),
	})
	if err != nil {
		return state, providerFailure(err)
	}

	upserts, removals := core.PartitionEvents(events)
	if len(upserts) > 0 {
		if err := tx.Events().Upsert(ctx, upserts); err != nil {
			return state, err
		}
	}
	if len(removals) > 0 {
		if err := tx.Events().Delete(ctx, removals); err != nil {
			return state, err
		}
	}
	return state.Complete(cursor, now, o.policy), nil
}

// fetchEvents pages through a listing and stamps the events with their
// mirror identity.
func fetchEvents(ctx context.Context, p core.Provider, key syncstate.CalendarKey, req core.EventsRequest) ([]core.Event, string, error) {
	var events []core.Event
	for {
		page, err := p.ListEvents(ctx, req)
		if err != nil {
			return nil, "", fmt.Errorf("list events of %s: %w", key, err)
		}
		for _, e := range page.Items {
			e.AccountID = key.AccountID
			e.CalendarID = key.CalendarID
			if e.TimeZone == "" {
				e.TimeZone = page.TimeZone
			}
			events = append(events, e)
		}
		if page.NextPageToken == "" {
			return events, page.NextSyncToken, nil
		}
		req.PageToken = page.NextPageToken
	}
}
