package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/calmirror/internal/calsync"
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

type fixture struct {
	store    *memory.Store
	provider *coretest.MockProvider
	receiver *Receiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), provider: new(coretest.MockProvider)}
	clk := clock.NewFakeClock(testNow)
	orch := calsync.New(f.store, staticProviders{p: f.provider}, calsync.WithClock(clk))
	f.receiver = NewReceiver(f.store, orch, WithClock(clk))
	return f
}

func (f *fixture) seed(t *testing.T, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, f.store.InTx(context.Background(), fn))
}

func (f *fixture) channel(t *testing.T, id string) core.Channel {
	t.Helper()
	var c core.Channel
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		c, err = tx.Channels().Find(ctx, id)
		return err
	}))
	return c
}

func calendarChannel(id string) core.Channel {
	return core.Channel{
		ID:            id,
		AccountID:     "acc",
		Status:        core.ChannelCreated,
		ResourceType:  core.ResourceCalendar,
		ResourceID:    "cal",
		Token:         "secret",
		ExpiresAt:     testNow.Add(24 * time.Hour),
		MessageNumber: core.NoMessage,
		UpdatedAt:     testNow.Add(-time.Hour),
	}
}

func syncedCalendar(cursor string) syncstate.CalendarSync {
	p := syncstate.DefaultPolicy()
	return syncstate.NewCalendarSync(syncstate.CalendarKey{AccountID: "acc", CalendarID: "cal"}, testNow).
		CompleteFull(cursor, p.Window(testNow), testNow, p)
}

func TestReceive_DispatchesCalendarSync(t *testing.T) {
	f := newFixture(t)
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SyncStates().SaveCalendar(ctx, syncedCalendar("tok1")))
		return tx.Channels().Save(ctx, calendarChannel("ch-1"))
	})

	f.provider.On("ListEvents", mock.Anything, core.EventsRequest{CalendarID: "cal", SyncToken: "tok1"}).
		Return(core.EventsPage{
			Items: []core.Event{{
				ID: "e1", Status: core.EventConfirmed, Title: "Standup",
				Start: testNow.Add(time.Hour), End: testNow.Add(90 * time.Minute),
			}},
			NextSyncToken: "tok2",
		}, nil).Once()

	out, err := f.receiver.Receive(context.Background(), core.Notification{
		ChannelID: "ch-1", Token: "secret", ResourceState: "exists", MessageNumber: 7,
	})
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.NoError(t, out.Failure)

	ch := f.channel(t, "ch-1")
	assert.Equal(t, core.ChannelSyncing, ch.Status)
	assert.Equal(t, int64(7), ch.MessageNumber)
	assert.Equal(t, testNow, ch.UpdatedAt)

	events, err := f.store.ListEvents(context.Background(), core.EventFilter{AccountID: "acc"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
	f.provider.AssertExpectations(t)
}

func TestReceive_DispatchesListSync(t *testing.T) {
	f := newFixture(t)
	list := calendarChannel("ch-list")
	list.ResourceType = core.ResourceCalendarList
	list.ResourceID = ""
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		return tx.Channels().Save(ctx, list)
	})

	f.provider.On("ListCalendars", mock.Anything, core.CalendarListRequest{}).
		Return(core.CalendarListPage{
			Items:         []core.CalendarListEntry{{ID: "cal", Summary: "Work"}},
			NextSyncToken: "list-tok",
		}, nil).Once()

	out, err := f.receiver.Receive(context.Background(), core.Notification{
		ChannelID: "ch-list", Token: "secret", MessageNumber: core.NoMessage,
	})
	require.NoError(t, err)
	assert.True(t, out.Full)

	ch := f.channel(t, "ch-list")
	assert.Equal(t, core.ChannelSyncing, ch.Status)
	assert.Equal(t, core.NoMessage, ch.MessageNumber)
	f.provider.AssertExpectations(t)
}

func TestReceive_Rejects(t *testing.T) {
	closed := calendarChannel("ch-closed")
	closed.Status = core.ChannelClosed
	orphan := calendarChannel("ch-orphan")
	orphan.ResourceID = ""

	tests := []struct {
		name    string
		n       core.Notification
		wantErr error
	}{
		{"unknown channel", core.Notification{ChannelID: "nope", Token: "secret"}, ErrUnknownChannel},
		{"closed channel", core.Notification{ChannelID: "ch-closed", Token: "secret", MessageNumber: 3}, core.ErrChannelClosed},
		{"wrong token", core.Notification{ChannelID: "ch-1", Token: "guess", MessageNumber: 3}, core.ErrTokenMismatch},
		{"calendar channel without calendar", core.Notification{ChannelID: "ch-orphan", Token: "secret", MessageNumber: 3}, core.ErrChannelInvariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, func(ctx context.Context, tx store.Tx) error {
				for _, c := range []core.Channel{calendarChannel("ch-1"), closed, orphan} {
					if err := tx.Channels().Save(ctx, c); err != nil {
						return err
					}
				}
				return nil
			})

			_, err := f.receiver.Receive(context.Background(), tt.n)
			require.ErrorIs(t, err, tt.wantErr)

			if tt.n.ChannelID != "nope" {
				ch := f.channel(t, tt.n.ChannelID)
				assert.NotEqual(t, core.ChannelSyncing, ch.Status)
				assert.Equal(t, core.NoMessage, ch.MessageNumber)
			}
			f.provider.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything)
		})
	}
}

func TestReceive_SkipsWhileCalendarLocked(t *testing.T) {
	f := newFixture(t)
	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SyncStates().SaveCalendar(ctx, syncedCalendar("tok1")))
		return tx.Channels().Save(ctx, calendarChannel("ch-1"))
	})

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			defer close(held)
			ok, err := tx.TryLock(ctx, store.CalendarLockKey("acc", "cal"))
			if err != nil || !ok {
				return errors.New("lock not acquired")
			}
			held <- struct{}{}
			<-release
			return nil
		})
	}()
	<-held

	out, err := f.receiver.Receive(context.Background(), core.Notification{ChannelID: "ch-1", Token: "secret", MessageNumber: 2})
	close(release)
	require.NoError(t, <-done)

	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, int64(2), f.channel(t, "ch-1").MessageNumber)
	f.provider.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything)
}

type mockReauthorizer struct {
	mock.Mock
}

func (m *mockReauthorizer) FlagForReauthorization(ctx context.Context, accountID string, cause error) error {
	return m.Called(accountID).Error(0)
}

func TestReceive_FlagsCredentialFailures(t *testing.T) {
	f := newFixture(t)
	reauth := new(mockReauthorizer)
	reauth.On("FlagForReauthorization", "acc").Return(nil).Once()
	f.receiver.reauth = reauth

	f.seed(t, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SyncStates().SaveCalendar(ctx, syncedCalendar("tok1")))
		return tx.Channels().Save(ctx, calendarChannel("ch-1"))
	})
	f.provider.On("ListEvents", mock.Anything, mock.Anything).
		Return(core.EventsPage{}, core.NewProviderError(core.KindCredentials, "list events", nil)).Once()

	out, err := f.receiver.Receive(context.Background(), core.Notification{ChannelID: "ch-1", Token: "secret", MessageNumber: 1})
	require.NoError(t, err)
	assert.True(t, out.NeedsReauthorization())
	assert.Equal(t, core.ChannelSyncing, f.channel(t, "ch-1").Status)
	reauth.AssertExpectations(t)
}
