package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/core/coretest"
)

func TestRegistry_CachesProviders(t *testing.T) {
	opened := 0
	r := NewRegistry([]Config{{ID: "work", Provider: "google"}}, func(ctx context.Context, cfg Config) (core.Provider, error) {
		opened++
		return new(coretest.MockProvider), nil
	})

	p1, err := r.Provider(context.Background(), "work")
	require.NoError(t, err)
	p2, err := r.Provider(context.Background(), "work")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, opened)

	_, err = r.Provider(context.Background(), "home")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestRegistry_OpenFailureIsCredentialError(t *testing.T) {
	r := NewRegistry([]Config{{ID: "work", Provider: "outlook"}}, func(ctx context.Context, cfg Config) (core.Provider, error) {
		return nil, errors.New("read token file: no such file")
	})

	_, err := r.Provider(context.Background(), "work")
	assert.ErrorIs(t, err, core.ErrCredentials)
}

func TestRegistry_FlagForReauthorization(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	opened := 0
	r := NewRegistry([]Config{{ID: "work"}, {ID: "home"}}, func(ctx context.Context, cfg Config) (core.Provider, error) {
		opened++
		return new(coretest.MockProvider), nil
	}, WithClock(clock.NewFakeClock(now)))

	_, err := r.Provider(context.Background(), "work")
	require.NoError(t, err)

	cause := core.NewProviderError(core.KindCredentials, "list events", nil)
	require.NoError(t, r.FlagForReauthorization(context.Background(), "work", cause))
	require.ErrorIs(t, r.FlagForReauthorization(context.Background(), "nobody", cause), ErrUnknownAccount)

	flags := r.Flagged()
	require.Len(t, flags, 1)
	assert.Equal(t, "work", flags[0].AccountID)
	assert.Equal(t, now, flags[0].FlaggedAt)

	_, err = r.Provider(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, 2, opened)

	r.Clear("work")
	assert.Empty(t, r.Flagged())
	assert.Equal(t, []string{"home", "work"}, r.Accounts())
}

func TestNewFactory_UnknownProvider(t *testing.T) {
	_, err := NewFactory(nil)(context.Background(), Config{ID: "x", Provider: "caldav"})
	assert.ErrorContains(t, err, "unknown provider")

	_, err = NewFactory(nil)(context.Background(), Config{ID: "x", Provider: "outlook"})
	assert.ErrorContains(t, err, "client_id")
}
