// Package postgres is the PostgreSQL mirror backend. Resource locks are
// transaction-scoped advisory locks, so they vanish with the unit.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
)

// Pool is the subset of pgxpool.Pool used by the store.
type Pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool Pool
}

var _ store.Store = (*Store)(nil)

// Open connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// New wires the store over a connection pool.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn store.TxFunc) (err error) {
	defer store.ObserveDB(ctx, "db.tx")()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListEvents implements core.EventReader.
func (s *Store) ListEvents(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	defer store.ObserveDB(ctx, "events.list")()
	return listEvents(ctx, s.pool, filter)
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer store.ObserveDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) TryLock(ctx context.Context, key string) (bool, error) {
	defer store.ObserveDB(ctx, "db.try_lock")()
	const q = `SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`
	var ok bool
	if err := t.tx.QueryRow(ctx, q, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("try lock %s: %w", key, err)
	}
	return ok, nil
}

// Savepoint uses a pgx pseudo nested transaction, which is a SAVEPOINT on
// the same connection.
func (t *pgTx) Savepoint(ctx context.Context, fn store.TxFunc) error {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: nested}); err != nil {
		if rbErr := nested.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w (after %w)", rbErr, err)
		}
		return err
	}
	if err := nested.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *pgTx) Events() store.EventRepository               { return &eventRepo{tx: t.tx} }
func (t *pgTx) CalendarLists() store.CalendarListRepository { return &calendarListRepo{tx: t.tx} }
func (t *pgTx) SyncStates() store.SyncStateRepository       { return &syncStateRepo{tx: t.tx} }
func (t *pgTx) Channels() store.ChannelRepository           { return &channelRepo{tx: t.tx} }

// querier is satisfied by both Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}
