package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/mo"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

const (
	listSyncColumns     = `account_id, next_sync_at, failed_sync_count, sync_token, last_synced`
	calendarSyncColumns = `account_id, calendar_id, next_sync_at, failed_sync_count, sync_token, synced_from, synced_to, last_synced`
)

type syncStateRepo struct {
	tx pgx.Tx
}

func (r *syncStateRepo) FindCalendarList(ctx context.Context, accountID string) (syncstate.CalendarListSync, error) {
	defer store.ObserveDB(ctx, "sync_states.find_list")()
	rows, err := r.tx.Query(ctx, `SELECT `+listSyncColumns+` FROM calendar_list_syncs WHERE account_id=$1`, accountID)
	if err != nil {
		return syncstate.CalendarListSync{}, fmt.Errorf("find list sync %s: %w", accountID, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanListSync)
	if err != nil {
		return syncstate.CalendarListSync{}, fmt.Errorf("find list sync %s: %w", accountID, notFound(err))
	}
	return s, nil
}

func (r *syncStateRepo) SaveCalendarList(ctx context.Context, s syncstate.CalendarListSync) error {
	defer store.ObserveDB(ctx, "sync_states.save_list")()
	const q = `INSERT INTO calendar_list_syncs (` + listSyncColumns + `) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id) DO UPDATE SET
    next_sync_at = EXCLUDED.next_sync_at,
    failed_sync_count = EXCLUDED.failed_sync_count,
    sync_token = EXCLUDED.sync_token,
    last_synced = EXCLUDED.last_synced`
	_, err := r.tx.Exec(ctx, q, s.AccountID, s.NextSyncAt, s.FailedSyncCount, optPtr(s.SyncToken), optPtr(s.LastSynced))
	if err != nil {
		return fmt.Errorf("save list sync %s: %w", s.AccountID, err)
	}
	return nil
}

func (r *syncStateRepo) DeleteCalendarList(ctx context.Context, accountID string) error {
	defer store.ObserveDB(ctx, "sync_states.delete_list")()
	if _, err := r.tx.Exec(ctx, `DELETE FROM calendar_list_syncs WHERE account_id=$1`, accountID); err != nil {
		return fmt.Errorf("delete list sync %s: %w", accountID, err)
	}
	return nil
}

func (r *syncStateRepo) ListCalendarLists(ctx context.Context) ([]syncstate.CalendarListSync, error) {
	defer store.ObserveDB(ctx, "sync_states.list_lists")()
	rows, err := r.tx.Query(ctx, `SELECT `+listSyncColumns+` FROM calendar_list_syncs ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("list list syncs: %w", err)
	}
	return pgx.CollectRows(rows, scanListSync)
}

func (r *syncStateRepo) FindCalendar(ctx context.Context, key syncstate.CalendarKey) (syncstate.CalendarSync, error) {
	defer store.ObserveDB(ctx, "sync_states.find_calendar")()
	rows, err := r.tx.Query(ctx, `SELECT `+calendarSyncColumns+` FROM calendar_syncs WHERE account_id=$1 AND calendar_id=$2`,
		key.AccountID, key.CalendarID)
	if err != nil {
		return syncstate.CalendarSync{}, fmt.Errorf("find calendar sync %s: %w", key, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanCalendarSync)
	if err != nil {
		return syncstate.CalendarSync{}, fmt.Errorf("find calendar sync %s: %w", key, notFound(err))
	}
	return s, nil
}

func (r *syncStateRepo) SaveCalendar(ctx context.Context, s syncstate.CalendarSync) error {
	defer store.ObserveDB(ctx, "sync_states.save_calendar")()
	const q = `INSERT INTO calendar_syncs (` + calendarSyncColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (account_id, calendar_id) DO UPDATE SET
    next_sync_at = EXCLUDED.next_sync_at,
    failed_sync_count = EXCLUDED.failed_sync_count,
    sync_token = EXCLUDED.sync_token,
    synced_from = EXCLUDED.synced_from,
    synced_to = EXCLUDED.synced_to,
    last_synced = EXCLUDED.last_synced`
	var from, to *time.Time
	if covered, ok := s.SyncedRange.Get(); ok {
		from, to = &covered.Start, &covered.End
	}
	_, err := r.tx.Exec(ctx, q, s.AccountID, s.CalendarID, s.NextSyncAt, s.FailedSyncCount,
		optPtr(s.SyncToken), from, to, optPtr(s.LastSynced))
	if err != nil {
		return fmt.Errorf("save calendar sync %s: %w", s.Key(), err)
	}
	return nil
}

func (r *syncStateRepo) DeleteCalendar(ctx context.Context, key syncstate.CalendarKey) error {
	defer store.ObserveDB(ctx, "sync_states.delete_calendar")()
	const q = `DELETE FROM calendar_syncs WHERE account_id=$1 AND calendar_id=$2`
	if _, err := r.tx.Exec(ctx, q, key.AccountID, key.CalendarID); err != nil {
		return fmt.Errorf("delete calendar sync %s: %w", key, err)
	}
	return nil
}

func (r *syncStateRepo) ListCalendars(ctx context.Context, accountID string) ([]syncstate.CalendarSync, error) {
	defer store.ObserveDB(ctx, "sync_states.list_calendars")()
	rows, err := r.tx.Query(ctx, `SELECT `+calendarSyncColumns+` FROM calendar_syncs WHERE account_id=$1 ORDER BY calendar_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list calendar syncs %s: %w", accountID, err)
	}
	return pgx.CollectRows(rows, scanCalendarSync)
}

func (r *syncStateRepo) DueCalendarLists(ctx context.Context, now time.Time, limit int) ([]syncstate.CalendarListSync, error) {
	defer store.ObserveDB(ctx, "sync_states.due_lists")()
	rows, err := r.tx.Query(ctx, `SELECT `+listSyncColumns+` FROM calendar_list_syncs
WHERE next_sync_at <= $1 ORDER BY next_sync_at, account_id LIMIT $2`, now, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("due list syncs: %w", err)
	}
	return pgx.CollectRows(rows, scanListSync)
}

func (r *syncStateRepo) DueCalendars(ctx context.Context, now time.Time, limit int) ([]syncstate.CalendarSync, error) {
	defer store.ObserveDB(ctx, "sync_states.due_calendars")()
	rows, err := r.tx.Query(ctx, `SELECT `+calendarSyncColumns+` FROM calendar_syncs
WHERE next_sync_at <= $1 ORDER BY next_sync_at, account_id, calendar_id LIMIT $2`, now, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("due calendar syncs: %w", err)
	}
	return pgx.CollectRows(rows, scanCalendarSync)
}

func scanListSync(row pgx.CollectableRow) (syncstate.CalendarListSync, error) {
	var (
		s     syncstate.CalendarListSync
		token *string
		last  *time.Time
	)
	if err := row.Scan(&s.AccountID, &s.NextSyncAt, &s.FailedSyncCount, &token, &last); err != nil {
		return syncstate.CalendarListSync{}, err
	}
	s.SyncToken = optFromPtr(token)
	s.LastSynced = optFromPtr(last)
	return s, nil
}

func scanCalendarSync(row pgx.CollectableRow) (syncstate.CalendarSync, error) {
	var (
		s        syncstate.CalendarSync
		token    *string
		from, to *time.Time
		last     *time.Time
	)
	if err := row.Scan(&s.AccountID, &s.CalendarID, &s.NextSyncAt, &s.FailedSyncCount, &token, &from, &to, &last); err != nil {
		return syncstate.CalendarSync{}, err
	}
	s.SyncToken = optFromPtr(token)
	s.LastSynced = optFromPtr(last)
	s.SyncedRange = mo.None[core.DateRange]()
	if from != nil && to != nil {
		s.SyncedRange = mo.Some(core.DateRange{Start: *from, End: *to})
	}
	return s, nil
}

func optFromPtr[T any](p *T) mo.Option[T] {
	if p == nil {
		return mo.None[T]()
	}
	return mo.Some(*p)
}

func optPtr[T any](o mo.Option[T]) *T {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

// LIMIT NULL means no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
