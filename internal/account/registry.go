// Package account resolves the provider client of each configured account
// and remembers which accounts need to be authorized again.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
)

// ErrUnknownAccount is returned for an account id missing from the configuration.
var ErrUnknownAccount = errors.New("unknown account")

// Config describes one synchronized account.
type Config struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Provider string `yaml:"provider" mapstructure:"provider"`
	// Google: OAuth client credentials downloaded from the cloud console.
	CredentialsFile string `yaml:"credentials_file,omitempty" mapstructure:"credentials_file"`
	TokenFile       string `yaml:"token_file" mapstructure:"token_file"`
	// Outlook: Azure app registration.
	ClientID string `yaml:"client_id,omitempty" mapstructure:"client_id"`
	TenantID string `yaml:"tenant_id,omitempty" mapstructure:"tenant_id"`
}

// Factory opens the provider client of an account.
type Factory func(ctx context.Context, cfg Config) (core.Provider, error)

// Flag records why an account needs reauthorization.
type Flag struct {
	AccountID string
	Cause     error
	FlaggedAt time.Time
}

// Registry caches one provider client per account.
type Registry struct {
	factory Factory
	clock   clock.Clock
	logger  *slog.Logger

	mu        sync.Mutex
	accounts  map[string]Config
	providers map[string]core.Provider
	flags     map[string]Flag
}

// Option configures a Registry.
type Option func(*Registry)

func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry over the given accounts.
func NewRegistry(accounts []Config, factory Factory, opts ...Option) *Registry {
	r := &Registry{
		factory:   factory,
		clock:     clock.RealClock{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		accounts:  make(map[string]Config, len(accounts)),
		providers: make(map[string]core.Provider),
		flags:     make(map[string]Flag),
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Accounts returns the configured account ids in order.
func (r *Registry) Accounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Account returns the configuration of an account.
func (r *Registry) Account(accountID string) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.accounts[accountID]
	if !ok {
		return Config{}, fmt.Errorf("%s: %w", accountID, ErrUnknownAccount)
	}
	return cfg, nil
}

// Provider returns the cached client of the account, opening it on first
// use. A client that cannot be opened is reported as a credential failure.
func (r *Registry) Provider(ctx context.Context, accountID string) (core.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[accountID]; ok {
		return p, nil
	}
	cfg, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", accountID, ErrUnknownAccount)
	}
	p, err := r.factory(ctx, cfg)
	if err != nil {
		return nil, core.NewProviderError(core.KindCredentials, "open "+cfg.Provider+" provider", err)
	}
	r.providers[accountID] = p
	return p, nil
}

// FlagForReauthorization records the failure and drops the cached client so
// the next sync picks up a token renewed by `calmirror auth`.
func (r *Registry) FlagForReauthorization(ctx context.Context, accountID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[accountID]; !ok {
		return fmt.Errorf("%s: %w", accountID, ErrUnknownAccount)
	}
	if _, already := r.flags[accountID]; !already {
		r.logger.Warn("account needs reauthorization, run 'calmirror auth'", "account", accountID, "error", cause)
	}
	r.flags[accountID] = Flag{AccountID: accountID, Cause: cause, FlaggedAt: r.clock.Now()}
	delete(r.providers, accountID)
	return nil
}

// Flagged returns the accounts waiting for reauthorization.
func (r *Registry) Flagged() []Flag {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Flag, 0, len(r.flags))
	for _, f := range r.flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Clear removes the reauthorization flag of an account.
func (r *Registry) Clear(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, accountID)
}
