package calsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/core/coretest"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/store/memory"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type staticProviders struct {
	p core.Provider
}

func (s staticProviders) Provider(ctx context.Context, accountID string) (core.Provider, error) {
	return s.p, nil
}

type mockReauthorizer struct {
	mock.Mock
}

func (m *mockReauthorizer) FlagForReauthorization(ctx context.Context, accountID string, cause error) error {
	return m.Called(accountID).Error(0)
}

// spyStore records the bulk writes made to the event repository.
type spyStore struct {
	store.Store

	mu      sync.Mutex
	upserts [][]core.Event
	deletes [][]core.EventKey
}

func (s *spyStore) InTx(ctx context.Context, fn store.TxFunc) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &spyTx{Tx: tx, spy: s})
	})
}

type spyTx struct {
	store.Tx
	spy *spyStore
}

func (t *spyTx) Savepoint(ctx context.Context, fn store.TxFunc) error {
	return t.Tx.Savepoint(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &spyTx{Tx: tx, spy: t.spy})
	})
}

func (t *spyTx) Events() store.EventRepository {
	return &spyEvents{EventRepository: t.Tx.Events(), spy: t.spy}
}

type spyEvents struct {
	store.EventRepository
	spy *spyStore
}

func (e *spyEvents) Upsert(ctx context.Context, events []core.Event) error {
	e.spy.mu.Lock()
	e.spy.upserts = append(e.spy.upserts, events)
	e.spy.mu.Unlock()
	return e.EventRepository.Upsert(ctx, events)
}

func (e *spyEvents) Delete(ctx context.Context, keys []core.EventKey) error {
	e.spy.mu.Lock()
	e.spy.deletes = append(e.spy.deletes, keys)
	e.spy.mu.Unlock()
	return e.EventRepository.Delete(ctx, keys)
}

type fixture struct {
	store    *spyStore
	provider *coretest.MockProvider
	clock    *clock.FakeClock
	reauth   *mockReauthorizer
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &spyStore{Store: memory.New()},
		provider: new(coretest.MockProvider),
		clock:    clock.NewFakeClock(testNow),
		reauth:   new(mockReauthorizer),
	}
	f.orch = New(f.store, staticProviders{p: f.provider},
		WithClock(f.clock),
		WithReauthorizer(f.reauth),
	)
	return f
}

func (f *fixture) seed(t *testing.T, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, f.store.Store.InTx(context.Background(), fn))
}

func (f *fixture) calendarState(t *testing.T, accountID, calendarID string) (syncstate.CalendarSync, error) {
	t.Helper()
	var s syncstate.CalendarSync
	err := f.store.Store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		s, err = tx.SyncStates().FindCalendar(ctx, syncstate.CalendarKey{AccountID: accountID, CalendarID: calendarID})
		return err
	})
	return s, err
}

func (f *fixture) listState(t *testing.T, accountID string) (syncstate.CalendarListSync, error) {
	t.Helper()
	var s syncstate.CalendarListSync
	err := f.store.Store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		s, err = tx.SyncStates().FindCalendarList(ctx, accountID)
		return err
	})
	return s, err
}

func (f *fixture) storedList(t *testing.T, accountID string) core.CalendarList {
	t.Helper()
	var l core.CalendarList
	require.NoError(t, f.store.Store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		l, err = tx.CalendarLists().Find(ctx, accountID)
		return err
	}))
	return l
}

func (f *fixture) events(t *testing.T, accountID string) []core.Event {
	t.Helper()
	events, err := f.store.ListEvents(context.Background(), core.EventFilter{AccountID: accountID})
	require.NoError(t, err)
	return events
}

func ev(id string, status core.EventStatus) core.Event {
	return core.Event{ID: id, Status: status, Title: id, Start: testNow.Add(time.Hour), End: testNow.Add(2 * time.Hour)}
}

// syncedCalendar is the state of a calendar that completed a full sync at testNow.
func syncedCalendar(accountID, calendarID, cursor string) syncstate.CalendarSync {
	p := syncstate.DefaultPolicy()
	return syncstate.NewCalendarSync(syncstate.CalendarKey{AccountID: accountID, CalendarID: calendarID}, testNow).
		CompleteFull(cursor, p.Window(testNow), testNow, p)
}
