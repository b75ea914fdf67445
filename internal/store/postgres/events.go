package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
)

const eventColumns = `account_id, calendar_id, event_id, status, event_type, title, description,
location, response, url, meeting_link, starts_at, ends_at, all_day, time_zone, updated_at`

type eventRepo struct {
	tx pgx.Tx
}

func (r *eventRepo) Upsert(ctx context.Context, events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	defer store.ObserveDB(ctx, "events.upsert")()

	const q = `INSERT INTO calendar_events (` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (account_id, calendar_id, event_id) DO UPDATE SET
    status = EXCLUDED.status,
    event_type = EXCLUDED.event_type,
    title = EXCLUDED.title,
    description = EXCLUDED.description,
    location = EXCLUDED.location,
    response = EXCLUDED.response,
    url = EXCLUDED.url,
    meeting_link = EXCLUDED.meeting_link,
    starts_at = EXCLUDED.starts_at,
    ends_at = EXCLUDED.ends_at,
    all_day = EXCLUDED.all_day,
    time_zone = EXCLUDED.time_zone,
    updated_at = EXCLUDED.updated_at`

	b := &pgx.Batch{}
	for _, e := range events {
		b.Queue(q, e.AccountID, e.CalendarID, e.ID, string(e.Status), int16(e.Type), e.Title, e.Description,
			e.Location, int16(e.Response), e.URL, e.MeetingLink, e.Start, e.End, e.IsAllDay, e.TimeZone, nullTime(e.Updated))
	}
	return sendBatch(ctx, r.tx, b, "upsert events")
}

func (r *eventRepo) Delete(ctx context.Context, keys []core.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	defer store.ObserveDB(ctx, "events.delete")()

	const q = `DELETE FROM calendar_events WHERE account_id=$1 AND calendar_id=$2 AND event_id=$3`
	b := &pgx.Batch{}
	for _, k := range keys {
		b.Queue(q, k.AccountID, k.CalendarID, k.EventID)
	}
	return sendBatch(ctx, r.tx, b, "delete events")
}

func (r *eventRepo) DeleteAllFor(ctx context.Context, accountID, calendarID string) error {
	defer store.ObserveDB(ctx, "events.delete_all")()
	const q = `DELETE FROM calendar_events WHERE account_id=$1 AND calendar_id=$2`
	if _, err := r.tx.Exec(ctx, q, accountID, calendarID); err != nil {
		return fmt.Errorf("delete events of %s/%s: %w", accountID, calendarID, err)
	}
	return nil
}

func (r *eventRepo) List(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	defer store.ObserveDB(ctx, "events.list")()
	return listEvents(ctx, r.tx, filter)
}

func listEvents(ctx context.Context, q querier, filter core.EventFilter) ([]core.Event, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.AccountID != "" {
		where = append(where, "account_id = "+arg(filter.AccountID))
	}
	if len(filter.CalendarIDs) > 0 {
		where = append(where, "calendar_id = ANY("+arg(filter.CalendarIDs)+")")
	}
	if !filter.End.IsZero() {
		where = append(where, "starts_at < "+arg(filter.End))
	}
	if !filter.Start.IsZero() {
		where = append(where, "ends_at > "+arg(filter.Start))
	}

	sql := `SELECT ` + eventColumns + ` FROM calendar_events`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY starts_at, event_id"

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.CollectableRow) (core.Event, error) {
	var (
		e        core.Event
		status   string
		typ      int16
		response int16
		updated  *time.Time
	)
	err := row.Scan(&e.AccountID, &e.CalendarID, &e.ID, &status, &typ, &e.Title, &e.Description,
		&e.Location, &response, &e.URL, &e.MeetingLink, &e.Start, &e.End, &e.IsAllDay, &e.TimeZone, &updated)
	if err != nil {
		return core.Event{}, err
	}
	e.Status = core.EventStatus(status)
	e.Type = core.EventType(typ)
	e.Response = core.ResponseStatus(response)
	if updated != nil {
		e.Updated = *updated
	}
	return e, nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch, op string) (err error) {
	br := tx.SendBatch(ctx, b)
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%s: %w", op, cerr)
		}
	}()
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
