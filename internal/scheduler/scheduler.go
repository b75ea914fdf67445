// Package scheduler periodically syncs every resource whose sync is due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/theakshaypant/calmirror/internal/calsync"
	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

// Syncer runs one sync per call, each in its own unit.
type Syncer interface {
	SyncCalendarList(ctx context.Context, accountID string, forceFull bool) (calsync.Outcome, error)
	SyncCalendar(ctx context.Context, accountID, calendarID string, forceFull bool) (calsync.Outcome, error)
}

// Renewer replaces push channels that expire soon.
type Renewer interface {
	Renew(ctx context.Context, before time.Time) (int, error)
}

// Config controls the scheduler loop.
type Config struct {
	// Interval between two passes.
	Interval time.Duration
	// Workers bounds the syncs running at once.
	Workers int
	// BatchSize caps the due resources of each kind taken per pass; 0 takes all.
	BatchSize int
	// RenewAhead renews channels expiring within this duration. Zero disables renewal.
	RenewAhead time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Second,
		Workers:    4,
		BatchSize:  100,
		RenewAhead: 2 * time.Hour,
	}
}

// Report summarizes one pass.
type Report struct {
	Lists     int
	Calendars int
	Skipped   int
	Failed    int
	Renewed   int
}

// Scheduler enumerates due sync states and fans them out to the orchestrator.
type Scheduler struct {
	store   store.Store
	syncer  Syncer
	renewer Renewer
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRenewer enables channel renewal on every pass.
func WithRenewer(r Renewer) Option {
	return func(s *Scheduler) { s.renewer = r }
}

// New creates a scheduler. Zero config fields take their defaults.
func New(st store.Store, syncer Syncer, cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	s := &Scheduler{
		store:  st,
		syncer: syncer,
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a pass immediately and then once per interval until ctx is
// cancelled. Pass errors are logged; Run only returns on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one pass: every due calendar list and calendar is synced with
// at most Workers syncs in flight, then expiring channels are renewed.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	now := s.clock.Now()
	lists, calendars, err := s.due(ctx, now)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Lists: len(lists), Calendars: len(calendars)}
		errs   []error
	)
	record := func(out calsync.Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			errs = append(errs, err)
		case out.Skipped:
			report.Skipped++
		case out.Failure != nil:
			report.Failed++
		}
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, l := range lists {
		g.Go(func() error {
			out, err := s.syncer.SyncCalendarList(ctx, l.AccountID, false)
			if err != nil {
				err = fmt.Errorf("sync calendar list of %s: %w", l.AccountID, err)
			}
			record(out, err)
			return nil
		})
	}
	for _, c := range calendars {
		g.Go(func() error {
			out, err := s.syncer.SyncCalendar(ctx, c.AccountID, c.CalendarID, false)
			if err != nil {
				err = fmt.Errorf("sync calendar %s: %w", c.Key(), err)
			}
			record(out, err)
			return nil
		})
	}
	_ = g.Wait()

	if s.renewer != nil && s.cfg.RenewAhead > 0 {
		n, err := s.renewer.Renew(ctx, now.Add(s.cfg.RenewAhead))
		report.Renewed = n
		if err != nil {
			errs = append(errs, fmt.Errorf("renew channels: %w", err))
		}
	}

	if report.Lists+report.Calendars+report.Renewed > 0 {
		s.logger.Info("scheduler pass finished",
			"lists", report.Lists, "calendars", report.Calendars,
			"skipped", report.Skipped, "failed", report.Failed, "renewed", report.Renewed)
	}
	return report, errors.Join(errs...)
}

func (s *Scheduler) due(ctx context.Context, now time.Time) ([]syncstate.CalendarListSync, []syncstate.CalendarSync, error) {
	var (
		lists     []syncstate.CalendarListSync
		calendars []syncstate.CalendarSync
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if lists, err = tx.SyncStates().DueCalendarLists(ctx, now, s.cfg.BatchSize); err != nil {
			return err
		}
		calendars, err = tx.SyncStates().DueCalendars(ctx, now, s.cfg.BatchSize)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load due sync states: %w", err)
	}
	return lists, calendars, nil
}
