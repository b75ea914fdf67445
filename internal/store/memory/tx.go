package memory

import (
	"context"

	"github.com/theakshaypant/calmirror/internal/store"
)

type tx struct {
	store *Store
	data  *dataset
	ops   []func(*dataset)
	held  []string
}

// apply runs op on the unit's copy and queues it for commit.
func (t *tx) apply(op func(*dataset)) {
	op(t.data)
	t.ops = append(t.ops, op)
}

func (t *tx) TryLock(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, k := range t.held {
		if k == key {
			return true, nil
		}
	}
	if !t.store.tryLock(key) {
		return false, nil
	}
	t.held = append(t.held, key)
	// Units committed before the lock was granted must be visible past it.
	t.refresh()
	return true, nil
}

// refresh rebuilds the unit's copy from the shared data and its own writes.
func (t *tx) refresh() {
	t.store.mu.RLock()
	t.data = t.store.data.clone()
	t.store.mu.RUnlock()
	for _, op := range t.ops {
		op(t.data)
	}
}

func (t *tx) Savepoint(ctx context.Context, fn store.TxFunc) error {
	n := len(t.ops)
	if err := fn(ctx, t); err != nil {
		t.ops = t.ops[:n]
		t.refresh()
		return err
	}
	return nil
}

func (t *tx) releaseLocks() {
	t.store.unlock(t.held)
	t.held = nil
}

func (t *tx) Events() store.EventRepository               { return eventRepo{t} }
func (t *tx) CalendarLists() store.CalendarListRepository { return calendarListRepo{t} }
func (t *tx) SyncStates() store.SyncStateRepository       { return syncStateRepo{t} }
func (t *tx) Channels() store.ChannelRepository           { return channelRepo{t} }
