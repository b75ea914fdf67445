package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/metrics"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

const resourceList = "calendar_list"

// EnableCalendarListSync makes the account's list sync due now, creating its
// state if needed.
func (o *Orchestrator) EnableCalendarListSync(ctx context.Context, accountID string) error {
	return o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return o.EnableCalendarListSyncTx(ctx, tx, accountID)
	})
}

func (o *Orchestrator) EnableCalendarListSyncTx(ctx context.Context, tx store.Tx, accountID string) error {
	now := o.clock.Now()
	state, err := tx.SyncStates().FindCalendarList(ctx, accountID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = syncstate.NewCalendarListSync(accountID, now)
	case err != nil:
		return err
	default:
		state = state.ForceSync(now)
	}
	if err := tx.SyncStates().SaveCalendarList(ctx, state); err != nil {
		return err
	}
	o.logger.Info("calendar list sync enabled", "account", accountID)
	return nil
}

// DisableCalendarListSync drops the mirrored list and its state, and disables
// every calendar sync of the account. Nothing changes if one of the calendars
// is syncing; the error then wraps ErrCalendarBusy.
func (o *Orchestrator) DisableCalendarListSync(ctx context.Context, accountID string) error {
	return o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return o.DisableCalendarListSyncTx(ctx, tx, accountID)
	})
}

func (o *Orchestrator) DisableCalendarListSyncTx(ctx context.Context, tx store.Tx, accountID string) error {
	if err := tx.CalendarLists().Delete(ctx, accountID); err != nil {
		return err
	}
	if err := tx.SyncStates().DeleteCalendarList(ctx, accountID); err != nil {
		return err
	}
	calendars, err := tx.SyncStates().ListCalendars(ctx, accountID)
	if err != nil {
		return err
	}
	for _, c := range calendars {
		if err := o.DisableCalendarSyncTx(ctx, tx, accountID, c.CalendarID); err != nil {
			return err
		}
	}
	metrics.ForgetFailedCount(accountID, resourceList, "")
	o.logger.Info("calendar list sync disabled", "account", accountID, "calendars", len(calendars))
	return nil
}

// SyncCalendarList syncs the account's calendar list. A full sync replaces
// the stored list; an incremental one merges the changes into it.
func (o *Orchestrator) SyncCalendarList(ctx context.Context, accountID string, forceFull bool) (Outcome, error) {
	var out Outcome
	err := o.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = o.SyncCalendarListTx(ctx, tx, accountID, forceFull)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	o.flagReauthorization(ctx, accountID, out.Failure)
	return out, nil
}

// SyncCalendarListTx is SyncCalendarList inside the caller's unit. The caller
// is responsible for flagging credential failures.
func (o *Orchestrator) SyncCalendarListTx(ctx context.Context, tx store.Tx, accountID string, forceFull bool) (Outcome, error) {
	locked, err := tx.TryLock(ctx, store.ListLockKey(accountID))
	if err != nil {
		return Outcome{}, err
	}
	if !locked {
		metrics.SyncSkipped(resourceList)
		o.logger.Debug("calendar list sync already running", "account", accountID)
		return Outcome{Skipped: true}, nil
	}

	now := o.clock.Now()
	state, err := tx.SyncStates().FindCalendarList(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		state = syncstate.NewCalendarListSync(accountID, now)
	} else if err != nil {
		return Outcome{}, err
	}

	full := forceFull || state.NeedsFullSync()
	start := o.clock.Now()
	var next syncstate.CalendarListSync
	attemptErr := tx.Savepoint(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		next, err = o.syncList(ctx, tx, state, full, now)
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
	if err := tx.SyncStates().SaveCalendarList(ctx, next); err != nil {
		return Outcome{}, err
	}

	metrics.SetFailedCount(accountID, resourceList, "", next.FailedSyncCount)
	if failure != nil {
		metrics.ObserveSync(resourceList, syncMode(full), core.KindOf(failure).String(), o.clock.Now().Sub(start))
		o.logger.Warn("calendar list sync failed",
			"account", accountID, "mode", syncMode(full), "kind", core.KindOf(failure).String(),
			"failed_count", next.FailedSyncCount, "next_sync_at", next.NextSyncAt, "error", failure)
		return Outcome{Full: full, Failure: failure}, nil
	}
	metrics.ObserveSync(resourceList, syncMode(full), "ok", o.clock.Now().Sub(start))
	o.logger.Info("calendar list synced", "account", accountID, "mode", syncMode(full), "next_sync_at", next.NextSyncAt)
	return Outcome{Full: full}, nil
}

func (o *Orchestrator) syncList(ctx context.Context, tx store.Tx, state syncstate.CalendarListSync, full bool, now time.Time) (syncstate.CalendarListSync, error) {
	accountID := state.AccountID
	p, err := o.provider(ctx, accountID)
	if err != nil {
		return state, err
	}

	var list core.CalendarList
	var cursor string
	if full {
		var entries []core.CalendarListEntry
		entries, cursor, err = fetchCalendarList(ctx, p, "")
		if err != nil {
			return state, providerFailure(err)
		}
		list = core.NewCalendarList(accountID, entries)
	} else {
		var entries []core.CalendarListEntry
		entries, cursor, err = fetchCalendarList(ctx, p, state.SyncToken.OrEmpty())
		if err != nil {
			return state, providerFailure(err)
		}
		stored, err := tx.CalendarLists().Find(ctx, accountID)
		if errors.Is(err, store.ErrNotFound) {
			stored = core.NewCalendarList(accountID, nil)
		} else if err != nil {
			return state, err
		}
		list = stored.MergeEntries(entries)
	}

	deferred, err := o.applySyncable(ctx, tx, accountID, list.SyncableCalendars())
	if err != nil {
		return state, err
	}
	if err := tx.CalendarLists().Save(ctx, list); err != nil {
		return state, err
	}
	next := state.Complete(cursor, now, o.policy)
	if full {
		next = state.CompleteFull(cursor, now, o.policy)
	}
	if deferred > 0 {
		// Calendars are diffed against the stored states on every list sync,
		// so the next run picks the busy ones up again.
		next = next.ForceSync(now)
	}
	return next, nil
}

// applySyncable enables calendars entering the syncable set and disables the
// ones leaving it. Calendars busy syncing are left as they are and counted in
// deferred.
func (o *Orchestrator) applySyncable(ctx context.Context, tx store.Tx, accountID string, syncable []string) (deferred int, err error) {
	enabled, err := tx.SyncStates().ListCalendars(ctx, accountID)
	if err != nil {
		return 0, err
	}
	current := make(map[string]bool, len(enabled))
	for _, s := range enabled {
		current[s.CalendarID] = true
	}

	apply := func(calendarID string, fn func(context.Context, store.Tx, string, string) error) error {
		err := fn(ctx, tx, accountID, calendarID)
		if errors.Is(err, ErrCalendarBusy) {
			o.logger.Info("calendar busy, deferring to next list sync", "account", accountID, "calendar", calendarID)
			deferred++
			return nil
		}
		return err
	}

	wanted := make(map[string]bool, len(syncable))
	for _, id := range syncable {
		wanted[id] = true
		if !current[id] {
			if err := apply(id, o.EnableCalendarSyncTx); err != nil {
				return deferred, err
			}
		}
	}
	for _, s := range enabled {
		if !wanted[s.CalendarID] {
			if err := apply(s.CalendarID, o.DisableCalendarSyncTx); err != nil {
				return deferred, err
			}
		}
	}
	return deferred, nil
}

func fetchCalendarList(ctx context.Context, p core.Provider, syncToken string) ([]core.CalendarListEntry, string, error) {
	req := core.CalendarListRequest{SyncToken: syncToken}
	var items []core.CalendarListEntry
	for {
		page, err := p.ListCalendars(ctx, req)
		if err != nil {
			return nil, "", fmt.Errorf("list calendars: %w", err)
		}
		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			return items, page.NextSyncToken, nil
		}
		req.PageToken = page.NextPageToken
	}
}
