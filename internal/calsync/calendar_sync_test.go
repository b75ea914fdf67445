package calsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

func TestSyncCalendar_IncrementalAppliesChanges(t *testing.T) {
	f := newFixture(t)
	p := f.orch.Policy()
	ctx := context.Background()

	state := syncedCalendar("acc", "cal", "tok1").Fail(testNow, p).Fail(testNow, p)
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SyncStates().SaveCalendar(ctx, state))
		gone := ev("gone", core.EventConfirmed)
		gone.AccountID, gone.CalendarID = "acc", "cal"
		return tx.Events().Upsert(ctx, []core.Event{gone})
	})

	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", SyncToken: "tok1"}).
		Return(core.EventsPage{
			Items:         []core.Event{ev("gone", core.EventCancelled), ev("new", core.EventConfirmed)},
			TimeZone:      "Europe/Berlin",
			NextSyncToken: "tok2",
		}, nil).Once()

	out, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
	require.NoError(t, err)

	assert.False(t, out.Skipped)
	assert.False(t, out.Full)
	assert.NoError(t, out.Failure)
	require.Len(t, f.store.upserts, 1)
	require.Len(t, f.store.deletes, 1)
	assert.Equal(t, "new", f.store.upserts[0][0].ID)
	assert.Equal(t, []core.EventKey{{AccountID: "acc", CalendarID: "cal", EventID: "gone"}}, f.store.deletes[0])

	events := f.events(t, "acc")
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)
	assert.Equal(t, "Europe/Berlin", events[0].TimeZone)

	got, err := f.calendarState(t, "acc", "cal")
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.SyncToken.MustGet())
	assert.Zero(t, got.FailedSyncCount)
	assert.Equal(t, state.SyncedRange, got.SyncedRange)
	f.provider.AssertExpectations(t)
}

func TestSyncCalendar_FullSyncReplacesWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := f.orch.Policy().Window(testNow)

	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		old := ev("old", core.EventConfirmed)
		old.AccountID, old.CalendarID = "acc", "cal"
		other := ev("other", core.EventConfirmed)
		other.AccountID, other.CalendarID = "acc", "home"
		return tx.Events().Upsert(ctx, []core.Event{old, other})
	})

	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", Range: mo.Some(window)}).
		Return(core.EventsPage{Items: []core.Event{ev("a", core.EventConfirmed)}, NextPageToken: "p2"}, nil).Once()
	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", Range: mo.Some(window), PageToken: "p2"}).
		Return(core.EventsPage{Items: []core.Event{ev("b", core.EventTentative), ev("c", core.EventCancelled)}, NextSyncToken: "tok1"}, nil).Once()

	out, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
	require.NoError(t, err)
	assert.True(t, out.Full)

	var ids []string
	for _, e := range f.events(t, "acc") {
		if e.CalendarID == "cal" {
			ids = append(ids, e.ID)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	assert.Len(t, f.events(t, "acc"), 3, "other calendars are untouched")

	got, err := f.calendarState(t, "acc", "cal")
	require.NoError(t, err)
	assert.Equal(t, "tok1", got.SyncToken.MustGet())
	assert.Equal(t, window, got.SyncedRange.MustGet())
	assert.False(t, got.NeedsFullSync(testNow, f.orch.Policy()))
	f.provider.AssertExpectations(t)
}

func TestSyncCalendar_ConcurrentCallsPerformOneSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.SyncStates().SaveCalendar(ctx, syncedCalendar("acc", "cal", "tok1"))
	})

	started := make(chan struct{})
	release := make(chan struct{})
	f.provider.On("ListEvents", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(core.EventsPage{NextSyncToken: "tok2"}, nil).Once()

	var (
		wg    sync.WaitGroup
		first Outcome
		err1  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, err1 = f.orch.SyncCalendar(ctx, "acc", "cal", false)
	}()
	<-started

	second, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	wg.Wait()
	require.NoError(t, err1)
	assert.False(t, first.Skipped)
	f.provider.AssertNumberOfCalls(t, "ListEvents", 1)
}

func TestSyncCalendar_FailureClassification(t *testing.T) {
	p := syncstate.DefaultPolicy()

	tests := []struct {
		name       string
		err        error
		wantToken  bool
		wantFailed int
		wantReauth bool
	}{
		{
			name:       "cursor invalidated resets",
			err:        core.NewProviderError(core.KindCursorInvalidated, "events.list", errors.New("410")),
			wantToken:  false,
			wantFailed: 0,
		},
		{
			name:       "transient backs off",
			err:        core.NewProviderError(core.KindTransient, "events.list", errors.New("503")),
			wantToken:  true,
			wantFailed: 1,
		},
		{
			name:       "unclassified backs off",
			err:        errors.New("connection reset"),
			wantToken:  true,
			wantFailed: 1,
		},
		{
			name:       "credentials backs off and flags the account",
			err:        core.NewProviderError(core.KindCredentials, "events.list", errors.New("401")),
			wantToken:  true,
			wantFailed: 1,
			wantReauth: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.seed(t, func(ctx context.Context, tx store.Tx) error {
				keep := ev("keep", core.EventConfirmed)
				keep.AccountID, keep.CalendarID = "acc", "cal"
				require.NoError(t, tx.Events().Upsert(ctx, []core.Event{keep}))
				return tx.SyncStates().SaveCalendar(ctx, syncedCalendar("acc", "cal", "tok1"))
			})
			f.provider.On("ListEvents", mock.Anything, mock.Anything).Return(core.EventsPage{}, tt.err).Once()
			if tt.wantReauth {
				f.reauth.On("FlagForReauthorization", "acc").Return(nil).Once()
			}

			out, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
			require.NoError(t, err)

			assert.ErrorIs(t, out.Failure, tt.err)
			assert.Equal(t, tt.wantReauth, out.NeedsReauthorization())

			got, err := f.calendarState(t, "acc", "cal")
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, got.SyncToken.IsPresent())
			assert.Equal(t, tt.wantFailed, got.FailedSyncCount)
			if tt.wantFailed > 0 {
				assert.Equal(t, testNow.Add(p.CalendarInterval), got.NextSyncAt)
			} else {
				assert.Equal(t, testNow, got.NextSyncAt)
				assert.True(t, got.NeedsFullSync(testNow, p))
			}
			assert.Len(t, f.events(t, "acc"), 1, "mirror is untouched by a failed attempt")
			f.reauth.AssertExpectations(t)
		})
	}
}

func TestSyncCalendar_FailedFullSyncKeepsMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := f.orch.Policy().Window(testNow)
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		keep := ev("keep", core.EventConfirmed)
		keep.AccountID, keep.CalendarID = "acc", "cal"
		return tx.Events().Upsert(ctx, []core.Event{keep})
	})

	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", Range: mo.Some(window)}).
		Return(core.EventsPage{Items: []core.Event{ev("a", core.EventConfirmed)}, NextPageToken: "p2"}, nil).Once()
	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", Range: mo.Some(window), PageToken: "p2"}).
		Return(core.EventsPage{}, errors.New("timeout")).Once()

	out, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
	require.NoError(t, err)
	assert.True(t, out.Full)
	assert.Error(t, out.Failure)

	events := f.events(t, "acc")
	require.Len(t, events, 1)
	assert.Equal(t, "keep", events[0].ID)

	got, err := f.calendarState(t, "acc", "cal")
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedSyncCount)
	assert.True(t, got.SyncToken.IsAbsent())
}

func TestSyncCalendar_StoreErrorAbortsUnit(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk full")
	orch := New(failingStore{Store: f.store, err: boom}, staticProviders{p: f.provider}, WithClock(f.clock))

	_, err := orch.SyncCalendar(context.Background(), "acc", "cal", false)

	assert.ErrorIs(t, err, boom)
	f.provider.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything)
}

func TestEnableDisableCalendarSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.EnableCalendarSync(ctx, "acc", "cal"))
	s, err := f.calendarState(t, "acc", "cal")
	require.NoError(t, err)
	assert.True(t, s.Due(testNow))

	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SyncStates().SaveCalendar(ctx, syncedCalendar("acc", "cal", "tok1")))
		e := ev("1", core.EventConfirmed)
		e.AccountID, e.CalendarID = "acc", "cal"
		return tx.Events().Upsert(ctx, []core.Event{e})
	})

	f.clock.Advance(time.Minute)
	require.NoError(t, f.orch.EnableCalendarSync(ctx, "acc", "cal"))
	s, err = f.calendarState(t, "acc", "cal")
	require.NoError(t, err)
	assert.Equal(t, "tok1", s.SyncToken.MustGet(), "enabling twice keeps the cursor")
	assert.Equal(t, f.clock.Now(), s.NextSyncAt)

	require.NoError(t, f.orch.DisableCalendarSync(ctx, "acc", "cal"))
	_, err = f.calendarState(t, "acc", "cal")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.events(t, "acc"))
}

func TestDisableCalendarSync_BusyCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.SyncStates().SaveCalendar(ctx, syncedCalendar("acc", "cal", "tok1"))
	})

	started := make(chan struct{})
	release := make(chan struct{})
	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", SyncToken: "tok1"}).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(core.EventsPage{Items: []core.Event{ev("1", core.EventConfirmed)}, NextSyncToken: "tok2"}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
		done <- err
	}()
	<-started

	err := f.orch.DisableCalendarSync(ctx, "acc", "cal")
	assert.ErrorIs(t, err, ErrCalendarBusy)
	assert.ErrorIs(t, f.orch.EnableCalendarSync(ctx, "acc", "cal"), ErrCalendarBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.events(t, "acc"), 1)

	require.NoError(t, f.orch.DisableCalendarSync(ctx, "acc", "cal"))
	_, err = f.calendarState(t, "acc", "cal")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.events(t, "acc"))
}

func TestSyncCalendarTx_ReadsStateCommittedWhileUnitWasOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.SyncStates().SaveCalendar(ctx, syncedCalendar("acc", "cal", "tok1"))
	})
	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", SyncToken: "tok1"}).
		Return(core.EventsPage{NextSyncToken: "tok2"}, nil).Once()
	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", SyncToken: "tok2"}).
		Return(core.EventsPage{NextSyncToken: "tok3"}, nil).Once()

	err := f.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := f.orch.SyncCalendar(ctx, "acc", "cal", false)
		require.NoError(t, err)

		out, err := f.orch.SyncCalendarTx(ctx, tx, "acc", "cal", false)
		require.NoError(t, err)
		assert.NoError(t, out.Failure)
		return nil
	})
	require.NoError(t, err)

	got, err := f.calendarState(t, "acc", "cal")
	require.NoError(t, err)
	assert.Equal(t, "tok3", got.SyncToken.MustGet())
	f.provider.AssertExpectations(t)
}

// failingStore fails every unit before it starts.
type failingStore struct {
	store.Store
	err error
}

func (s failingStore) InTx(ctx context.Context, fn store.TxFunc) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingTx{Tx: tx, err: s.err})
	})
}

type failingTx struct {
	store.Tx
	err error
}

func (t failingTx) SyncStates() store.SyncStateRepository {
	return failingStates{SyncStateRepository: t.Tx.SyncStates(), err: t.err}
}

type failingStates struct {
	store.SyncStateRepository
	err error
}

func (s failingStates) FindCalendar(ctx context.Context, key syncstate.CalendarKey) (syncstate.CalendarSync, error) {
	return syncstate.CalendarSync{}, s.err
}
