// Package calsync runs calendar list and calendar syncs against a provider
// and applies the results to the mirror. Every operation is one atomic unit
// of the store; provider failures are classified and persisted as sync state
// changes rather than returned.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

// ErrNotEnabled is returned when forcing a sync that was never enabled.
var ErrNotEnabled = errors.New("sync not enabled")

// Providers resolves the provider client of an account.
type Providers interface {
	Provider(ctx context.Context, accountID string) (core.Provider, error)
}

// Reauthorizer is told about accounts whose credentials the provider rejected.
type Reauthorizer interface {
	FlagForReauthorization(ctx context.Context, accountID string, cause error) error
}

// Outcome reports how a sync attempt ended. Provider failures end up in
// Failure; they have already been recorded in the sync state.
type Outcome struct {
	// Skipped is set when another sync held the resource.
	Skipped bool
	Full    bool
	Failure error
}

// NeedsReauthorization reports whether the attempt failed on credentials.
func (o Outcome) NeedsReauthorization() bool {
	return errors.Is(o.Failure, core.ErrCredentials)
}

// Orchestrator coordinates syncs between providers and the mirror.
type Orchestrator struct {
	store     store.Store
	providers Providers
	policy    syncstate.Policy
	clock     clock.Clock
	reauth    Reauthorizer
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the window and retry policy.
func WithPolicy(p syncstate.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithReauthorizer sets who is told about credential failures.
func WithReauthorizer(r Reauthorizer) Option {
	return func(o *Orchestrator) { o.reauth = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator.
func New(st store.Store, providers Providers, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		providers: providers,
		policy:    syncstate.DefaultPolicy(),
		clock:     clock.RealClock{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the policy in use.
func (o *Orchestrator) Policy() syncstate.Policy {
	return o.policy
}

// attemptFailure marks an error raised by the provider side of an attempt, as
// opposed to a store error that must abort the unit.
type attemptFailure struct {
	err error
}

func (f *attemptFailure) Error() string { return f.err.Error() }
func (f *attemptFailure) Unwrap() error { return f.err }

func providerFailure(err error) error {
	if err == nil {
		return nil
	}
	return &attemptFailure{err: err}
}

// splitAttempt separates a provider failure from a store error.
func splitAttempt(err error) (failure error, infra error) {
	var f *attemptFailure
	if errors.As(err, &f) {
		return f.err, nil
	}
	return nil, err
}

func (o *Orchestrator) provider(ctx context.Context, accountID string) (core.Provider, error) {
	p, err := o.providers.Provider(ctx, accountID)
	if err != nil {
		return nil, providerFailure(fmt.Errorf("resolve provider for %s: %w", accountID, err))
	}
	return p, nil
}

func (o *Orchestrator) flagReauthorization(ctx context.Context, accountID string, failure error) {
	if o.reauth == nil || !errors.Is(failure, core.ErrCredentials) {
		return
	}
	if err := o.reauth.FlagForReauthorization(ctx, accountID, failure); err != nil {
		o.logger.Error("failed to flag account for reauthorization", "account", accountID, "error", err)
	}
}

func syncMode(full bool) string {
	if full {
		return "full"
	}
	return "incremental"
}
