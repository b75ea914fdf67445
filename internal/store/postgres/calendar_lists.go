package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
)

type calendarListRepo struct {
	tx pgx.Tx
}

func (r *calendarListRepo) Find(ctx context.Context, accountID string) (core.CalendarList, error) {
	defer store.ObserveDB(ctx, "calendar_lists.find")()
	const q = `SELECT calendars FROM calendar_lists WHERE account_id=$1`
	list := core.CalendarList{AccountID: accountID}
	if err := r.tx.QueryRow(ctx, q, accountID).Scan(&list.Calendars); err != nil {
		return core.CalendarList{}, fmt.Errorf("find calendar list %s: %w", accountID, notFound(err))
	}
	if list.Calendars == nil {
		list.Calendars = map[string]core.CalendarListEntry{}
	}
	return list, nil
}

func (r *calendarListRepo) Save(ctx context.Context, list core.CalendarList) error {
	defer store.ObserveDB(ctx, "calendar_lists.save")()
	const q = `INSERT INTO calendar_lists (account_id, calendars, saved_at) VALUES ($1, $2, NOW())
ON CONFLICT (account_id) DO UPDATE SET calendars = EXCLUDED.calendars, saved_at = EXCLUDED.saved_at`
	calendars := list.Calendars
	if calendars == nil {
		calendars = map[string]core.CalendarListEntry{}
	}
	if _, err := r.tx.Exec(ctx, q, list.AccountID, calendars); err != nil {
		return fmt.Errorf("save calendar list %s: %w", list.AccountID, err)
	}
	return nil
}

func (r *calendarListRepo) Delete(ctx context.Context, accountID string) error {
	defer store.ObserveDB(ctx, "calendar_lists.delete")()
	if _, err := r.tx.Exec(ctx, `DELETE FROM calendar_lists WHERE account_id=$1`, accountID); err != nil {
		return fmt.Errorf("delete calendar list %s: %w", accountID, err)
	}
	return nil
}
