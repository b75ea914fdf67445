// Package notify turns provider webhook deliveries into syncs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/theakshaypant/calmirror/internal/calsync"
	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
)

// ErrUnknownChannel is returned for notifications of a channel never created.
var ErrUnknownChannel = errors.New("unknown channel")

// Syncer runs syncs inside the receiver's unit.
type Syncer interface {
	SyncCalendarListTx(ctx context.Context, tx store.Tx, accountID string, forceFull bool) (calsync.Outcome, error)
	SyncCalendarTx(ctx context.Context, tx store.Tx, accountID, calendarID string, forceFull bool) (calsync.Outcome, error)
}

// Receiver validates notifications against their channel and dispatches them.
type Receiver struct {
	store  store.Store
	syncer Syncer
	reauth calsync.Reauthorizer
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a Receiver.
type Option func(*Receiver)

func WithClock(c clock.Clock) Option {
	return func(r *Receiver) { r.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReauthorizer sets who is told about credential failures of dispatched syncs.
func WithReauthorizer(a calsync.Reauthorizer) Option {
	return func(r *Receiver) { r.reauth = a }
}

// NewReceiver creates a receiver.
func NewReceiver(st store.Store, syncer Syncer, opts ...Option) *Receiver {
	r := &Receiver{
		store:  st,
		syncer: syncer,
		clock:  clock.RealClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive handles one delivery in a single unit: the channel is validated,
// the matching sync runs, and the channel is saved once the sync returns.
// Lock contention and provider failures are not errors; an unknown, closed
// or mismatched channel is.
func (r *Receiver) Receive(ctx context.Context, n core.Notification) (calsync.Outcome, error) {
	var (
		out     calsync.Outcome
		account string
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ch, err := tx.Channels().Find(ctx, n.ChannelID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("channel %s: %w", n.ChannelID, ErrUnknownChannel)
		} else if err != nil {
			return err
		}
		account = ch.AccountID

		next, err := ch.ReceiveMessage(n, r.clock.Now())
		if err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}

		switch ch.ResourceType {
		case core.ResourceCalendarList:
			out, err = r.syncer.SyncCalendarListTx(ctx, tx, ch.AccountID, false)
		case core.ResourceCalendar:
			if ch.ResourceID == "" {
				return fmt.Errorf("channel %s: %w", ch.ID, core.ErrChannelInvariant)
			}
			out, err = r.syncer.SyncCalendarTx(ctx, tx, ch.AccountID, ch.ResourceID, false)
		default:
			return fmt.Errorf("channel %s has resource type %q: %w", ch.ID, ch.ResourceType, core.ErrChannelInvariant)
		}
		if err != nil {
			return err
		}
		return tx.Channels().Save(ctx, next)
	})
	if err != nil {
		return calsync.Outcome{}, err
	}

	if out.NeedsReauthorization() && r.reauth != nil {
		if err := r.reauth.FlagForReauthorization(ctx, account, out.Failure); err != nil {
			r.logger.Error("failed to flag account for reauthorization", "account", account, "error", err)
		}
	}
	r.logger.Debug("notification handled", "channel", n.ChannelID, "account", account,
		"resource_state", n.ResourceState, "message_number", n.MessageNumber, "skipped", out.Skipped)
	return out, nil
}
