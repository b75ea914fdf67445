package memory

import (
	"context"
	"sort"
	"time"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

type eventRepo struct{ t *tx }

func (r eventRepo) Upsert(ctx context.Context, events []core.Event) error {
	batch := append([]core.Event(nil), events...)
	r.t.apply(func(d *dataset) {
		for _, e := range batch {
			d.events[e.Key()] = e
		}
	})
	return nil
}

func (r eventRepo) Delete(ctx context.Context, keys []core.EventKey) error {
	batch := append([]core.EventKey(nil), keys...)
	r.t.apply(func(d *dataset) {
		for _, k := range batch {
			delete(d.events, k)
		}
	})
	return nil
}

func (r eventRepo) DeleteAllFor(ctx context.Context, accountID, calendarID string) error {
	r.t.apply(func(d *dataset) {
		for k := range d.events {
			if k.AccountID == accountID && k.CalendarID == calendarID {
				delete(d.events, k)
			}
		}
	})
	return nil
}

func (r eventRepo) List(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	return listEvents(r.t.data, filter), nil
}

type calendarListRepo struct{ t *tx }

func (r calendarListRepo) Find(ctx context.Context, accountID string) (core.CalendarList, error) {
	l, ok := r.t.data.lists[accountID]
	if !ok {
		return core.CalendarList{}, store.ErrNotFound
	}
	return copyList(l), nil
}

func (r calendarListRepo) Save(ctx context.Context, list core.CalendarList) error {
	l := copyList(list)
	r.t.apply(func(d *dataset) { d.lists[l.AccountID] = copyList(l) })
	return nil
}

func (r calendarListRepo) Delete(ctx context.Context, accountID string) error {
	r.t.apply(func(d *dataset) { delete(d.lists, accountID) })
	return nil
}

type syncStateRepo struct{ t *tx }

func (r syncStateRepo) FindCalendarList(ctx context.Context, accountID string) (syncstate.CalendarListSync, error) {
	s, ok := r.t.data.listSyncs[accountID]
	if !ok {
		return syncstate.CalendarListSync{}, store.ErrNotFound
	}
	return s, nil
}

func (r syncStateRepo) SaveCalendarList(ctx context.Context, s syncstate.CalendarListSync) error {
	r.t.apply(func(d *dataset) { d.listSyncs[s.AccountID] = s })
	return nil
}

func (r syncStateRepo) DeleteCalendarList(ctx context.Context, accountID string) error {
	r.t.apply(func(d *dataset) { delete(d.listSyncs, accountID) })
	return nil
}

func (r syncStateRepo) ListCalendarLists(ctx context.Context) ([]syncstate.CalendarListSync, error) {
	out := make([]syncstate.CalendarListSync, 0, len(r.t.data.listSyncs))
	for _, s := range r.t.data.listSyncs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r syncStateRepo) FindCalendar(ctx context.Context, key syncstate.CalendarKey) (syncstate.CalendarSync, error) {
	s, ok := r.t.data.calSyncs[key]
	if !ok {
		return syncstate.CalendarSync{}, store.ErrNotFound
	}
	return s, nil
}

func (r syncStateRepo) SaveCalendar(ctx context.Context, s syncstate.CalendarSync) error {
	r.t.apply(func(d *dataset) { d.calSyncs[s.Key()] = s })
	return nil
}

func (r syncStateRepo) DeleteCalendar(ctx context.Context, key syncstate.CalendarKey) error {
	r.t.apply(func(d *dataset) { delete(d.calSyncs, key) })
	return nil
}

func (r syncStateRepo) ListCalendars(ctx context.Context, accountID string) ([]syncstate.CalendarSync, error) {
	var out []syncstate.CalendarSync
	for k, s := range r.t.data.calSyncs {
		if k.AccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalendarID < out[j].CalendarID })
	return out, nil
}

func (r syncStateRepo) DueCalendarLists(ctx context.Context, now time.Time, limit int) ([]syncstate.CalendarListSync, error) {
	var out []syncstate.CalendarListSync
	for _, s := range r.t.data.listSyncs {
		if s.Due(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextSyncAt.Equal(out[j].NextSyncAt) {
			return out[i].NextSyncAt.Before(out[j].NextSyncAt)
		}
		return out[i].AccountID < out[j].AccountID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r syncStateRepo) DueCalendars(ctx context.Context, now time.Time, limit int) ([]syncstate.CalendarSync, error) {
	var out []syncstate.CalendarSync
	for _, s := range r.t.data.calSyncs {
		if s.Due(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextSyncAt.Equal(out[j].NextSyncAt) {
			return out[i].NextSyncAt.Before(out[j].NextSyncAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type channelRepo struct{ t *tx }

func (r channelRepo) Find(ctx context.Context, id string) (core.Channel, error) {
	c, ok := r.t.data.channels[id]
	if !ok {
		return core.Channel{}, store.ErrNotFound
	}
	return c, nil
}

func (r channelRepo) Save(ctx context.Context, c core.Channel) error {
	r.t.apply(func(d *dataset) { d.channels[c.ID] = c })
	return nil
}

func (r channelRepo) FindByResource(ctx context.Context, accountID string, rt core.ResourceType, resourceID string) ([]core.Channel, error) {
	return r.collect(func(c core.Channel) bool {
		return c.Live() && c.AccountID == accountID && c.ResourceType == rt && c.ResourceID == resourceID
	}), nil
}

func (r channelRepo) ListByAccount(ctx context.Context, accountID string) ([]core.Channel, error) {
	return r.collect(func(c core.Channel) bool { return c.AccountID == accountID }), nil
}

func (r channelRepo) ListExpiring(ctx context.Context, before time.Time) ([]core.Channel, error) {
	return r.collect(func(c core.Channel) bool { return c.Live() && c.ExpiresAt.Before(before) }), nil
}

func (r channelRepo) collect(keep func(core.Channel) bool) []core.Channel {
	var out []core.Channel
	for _, c := range r.t.data.channels {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
