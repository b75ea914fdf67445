package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
)

type resource struct {
	rt core.ResourceType
	id string
}

// Renew replaces the live channels expiring before the horizon.
func (m *Manager) Renew(ctx context.Context, before time.Time) (int, error) {
	var expiring []core.Channel
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		expiring, err = tx.Channels().ListExpiring(ctx, before)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list expiring channels: %w", err)
	}

	// several channels of one resource need a single replacement
	seen := make(map[string]bool)
	var (
		errs    []error
		renewed int
	)
	for _, c := range expiring {
		key := c.AccountID + "|" + string(c.ResourceType) + "|" + c.ResourceID
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := m.CreateChannel(ctx, c.AccountID, c.ResourceType, c.ResourceID); err != nil {
			errs = append(errs, fmt.Errorf("renew channel %s: %w", c.ID, err))
			continue
		}
		renewed++
	}
	return renewed, errors.Join(errs...)
}

// Reconcile opens a channel for every synced resource of the account that
// lacks a live one, and closes live channels of resources no longer synced.
func (m *Manager) Reconcile(ctx context.Context, accountID string) error {
	wanted := make(map[resource]bool)
	var live []core.Channel
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.SyncStates().FindCalendarList(ctx, accountID)
		switch {
		case err == nil:
			wanted[resource{rt: core.ResourceCalendarList}] = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		calendars, err := tx.SyncStates().ListCalendars(ctx, accountID)
		if err != nil {
			return err
		}
		for _, c := range calendars {
			wanted[resource{rt: core.ResourceCalendar, id: c.CalendarID}] = true
		}

		channels, err := tx.Channels().ListByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		for _, c := range channels {
			if c.Live() {
				live = append(live, c)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read resources of %s: %w", accountID, err)
	}

	covered := make(map[resource]bool)
	var stale []core.Channel
	for _, c := range live {
		r := resource{rt: c.ResourceType, id: c.ResourceID}
		if wanted[r] {
			covered[r] = true
			continue
		}
		stale = append(stale, c)
	}

	var errs []error
	if len(stale) > 0 {
		p, err := m.providers.Provider(ctx, accountID)
		if err != nil {
			return fmt.Errorf("resolve provider for %s: %w", accountID, err)
		}
		if err := m.closeAll(ctx, p, stale); err != nil {
			errs = append(errs, err)
		}
	}
	for r := range wanted {
		if covered[r] {
			continue
		}
		if _, err := m.CreateChannel(ctx, accountID, r.rt, r.id); err != nil {
			errs = append(errs, fmt.Errorf("open %s channel %q: %w", r.rt, r.id, err))
		}
	}
	return errors.Join(errs...)
}
