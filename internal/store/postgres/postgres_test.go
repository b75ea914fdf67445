package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theakshaypant/calmirror/internal/store"
)

func TestInTx_CommitsOnSuccess(t *testing.T) {
	tx := &mockTx{
		queries: []queryExpectation{
			{expect: regexp.MustCompile(`pg_try_advisory_xact_lock\(hashtextextended\(\$1, 0\)\)`), args: []any{"calendar:acc:cal"}, value: true},
		},
		execs: []execExpectation{
			{expect: regexp.MustCompile("DELETE FROM calendar_events WHERE account_id=\\$1 AND calendar_id=\\$2$"), args: []any{"acc", "cal"}},
		},
	}
	pool := &mockPool{t: t, txs: []*mockTx{tx}}
	s := New(pool)

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.TryLock(ctx, store.CalendarLockKey("acc", "cal"))
		require.NoError(t, err)
		require.True(t, ok)
		return tx.Events().DeleteAllFor(ctx, "acc", "cal")
	})

	require.NoError(t, err)
	require.NoError(t, tx.pending())
	assert.True(t, tx.committed)
	assert.False(t, tx.rolled)
	pool.assertDone()
}

func TestInTx_RollsBackOnError(t *testing.T) {
	tx := &mockTx{}
	pool := &mockPool{t: t, txs: []*mockTx{tx}}
	boom := errors.New("boom")

	err := New(pool).InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, tx.rolled)
	assert.False(t, tx.committed)
}

func TestTryLock_Contended(t *testing.T) {
	tx := &mockTx{queries: []queryExpectation{
		{expect: regexp.MustCompile("pg_try_advisory_xact_lock"), value: false},
	}}
	pool := &mockPool{t: t, txs: []*mockTx{tx}}

	err := New(pool).InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.TryLock(ctx, store.ListLockKey("acc"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestSavepoint(t *testing.T) {
	failed := &mockTx{execs: []execExpectation{
		{expect: regexp.MustCompile("DELETE FROM calendar_events")},
	}}
	released := &mockTx{}
	outer := &mockTx{
		nested: []*mockTx{failed, released},
		execs: []execExpectation{
			{expect: regexp.MustCompile("DELETE FROM calendar_lists"), args: []any{"acc"}},
		},
	}
	pool := &mockPool{t: t, txs: []*mockTx{outer}}
	boom := errors.New("provider down")

	err := New(pool).InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		err := tx.Savepoint(ctx, func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.Events().DeleteAllFor(ctx, "acc", "cal"))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, tx.Savepoint(ctx, func(ctx context.Context, tx store.Tx) error { return nil }))
		return tx.CalendarLists().Delete(ctx, "acc")
	})

	require.NoError(t, err)
	assert.True(t, failed.rolled)
	assert.False(t, failed.committed)
	assert.True(t, released.committed)
	assert.True(t, outer.committed)
	require.NoError(t, outer.pending())
}

func TestClose(t *testing.T) {
	pool := &mockPool{t: t}
	s := New(pool)
	require.NoError(t, s.HealthCheck(context.Background()))
	s.Close()
	assert.True(t, pool.closed)
}
