// Package memory is an in-process mirror backend for development and tests.
// A unit works on a private copy of the data, refreshed each time it takes a
// lock, and replays its writes onto the shared copy on commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

type dataset struct {
	events    map[core.EventKey]core.Event
	lists     map[string]core.CalendarList
	listSyncs map[string]syncstate.CalendarListSync
	calSyncs  map[syncstate.CalendarKey]syncstate.CalendarSync
	channels  map[string]core.Channel
}

func newDataset() *dataset {
	return &dataset{
		events:    make(map[core.EventKey]core.Event),
		lists:     make(map[string]core.CalendarList),
		listSyncs: make(map[string]syncstate.CalendarListSync),
		calSyncs:  make(map[syncstate.CalendarKey]syncstate.CalendarSync),
		channels:  make(map[string]core.Channel),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		events:    make(map[core.EventKey]core.Event, len(d.events)),
		lists:     make(map[string]core.CalendarList, len(d.lists)),
		listSyncs: make(map[string]syncstate.CalendarListSync, len(d.listSyncs)),
		calSyncs:  make(map[syncstate.CalendarKey]syncstate.CalendarSync, len(d.calSyncs)),
		channels:  make(map[string]core.Channel, len(d.channels)),
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.lists {
		c.lists[k] = copyList(v)
	}
	for k, v := range d.listSyncs {
		c.listSyncs[k] = v
	}
	for k, v := range d.calSyncs {
		c.calSyncs[k] = v
	}
	for k, v := range d.channels {
		c.channels[k] = v
	}
	return c
}

func copyList(l core.CalendarList) core.CalendarList {
	c := core.CalendarList{AccountID: l.AccountID, Calendars: make(map[string]core.CalendarListEntry, len(l.Calendars))}
	for k, v := range l.Calendars {
		c.Calendars[k] = v
	}
	return c
}

// Store keeps the mirror in memory.
type Store struct {
	mu   sync.RWMutex
	data *dataset

	lockMu sync.Mutex
	locks  map[string]struct{}
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: newDataset(), locks: make(map[string]struct{})}
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn store.TxFunc) error {
	s.mu.RLock()
	t := &tx{store: s, data: s.data.clone()}
	s.mu.RUnlock()
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	for _, op := range t.ops {
		op(s.data)
	}
	s.mu.Unlock()
	return nil
}

// ListEvents implements core.EventReader.
func (s *Store) ListEvents(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEvents(s.data, filter), nil
}

func (s *Store) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

func (s *Store) tryLock(key string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; held {
		return false
	}
	s.locks[key] = struct{}{}
	return true
}

func (s *Store) unlock(keys []string) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	for _, k := range keys {
		delete(s.locks, k)
	}
}

func listEvents(d *dataset, filter core.EventFilter) []core.Event {
	var out []core.Event
	for _, e := range d.events {
		if store.MatchEvent(e, filter) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
