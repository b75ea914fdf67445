// Package channel manages provider push channels: opening verified
// subscriptions, tearing them down, and keeping one live channel per synced
// resource.
package channel

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/metrics"
	"github.com/theakshaypant/calmirror/internal/store"
)

// ErrVerification is returned when the provider does not echo the channel id
// and token it was given.
var ErrVerification = errors.New("subscription does not echo channel identity")

const tokenBytes = 32

// Providers resolves the provider client of an account.
type Providers interface {
	Provider(ctx context.Context, accountID string) (core.Provider, error)
}

// Config holds the subscription parameters.
type Config struct {
	// BaseURL is the public URL of the webhook server. Notifications for a
	// provider are posted to BaseURL/webhooks/<provider id>.
	BaseURL string
	// TTL is the requested channel lifetime. Providers may shorten it.
	TTL time.Duration
}

// Manager opens and closes channels.
type Manager struct {
	store     store.Store
	providers Providers
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a channel manager.
func NewManager(st store.Store, providers Providers, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		providers: providers,
		cfg:       cfg,
		clock:     clock.RealClock{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CallbackURL returns where a provider posts its notifications.
func (m *Manager) CallbackURL(providerID string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/webhooks/" + providerID
}

// CreateChannel replaces the live channels of a resource with a fresh one.
// Closing the previous channels is best effort.
func (m *Manager) CreateChannel(ctx context.Context, accountID string, rt core.ResourceType, resourceID string) (core.Channel, error) {
	if rt == core.ResourceCalendar && resourceID == "" {
		return core.Channel{}, fmt.Errorf("calendar channel without calendar id: %w", core.ErrChannelInvariant)
	}
	if rt == core.ResourceCalendarList {
		resourceID = ""
	}

	p, err := m.providers.Provider(ctx, accountID)
	if err != nil {
		return core.Channel{}, fmt.Errorf("resolve provider for %s: %w", accountID, err)
	}

	previous, err := m.liveChannels(ctx, accountID, rt, resourceID)
	if err != nil {
		return core.Channel{}, err
	}
	for _, c := range previous {
		err := p.CloseSubscription(ctx, c.Subscription())
		metrics.ObserveChannelOp("close", err)
		if err != nil {
			m.logger.Warn("failed to stop previous channel", "account", accountID, "channel", c.ID, "error", err)
		}
	}

	token, err := newToken()
	if err != nil {
		return core.Channel{}, err
	}
	id := uuid.NewString()
	sub, err := p.OpenSubscription(ctx, core.SubscriptionRequest{
		ResourceType: rt,
		ResourceID:   resourceID,
		CallbackURL:  m.CallbackURL(p.ID()),
		ChannelID:    id,
		Token:        token,
		TTL:          m.cfg.TTL,
	})
	metrics.ObserveChannelOp("open", err)
	if err != nil {
		return core.Channel{}, fmt.Errorf("open subscription: %w", err)
	}

	if sub.ChannelID != id || subtle.ConstantTimeCompare([]byte(sub.Token), []byte(token)) != 1 {
		m.rollback(ctx, p, accountID, sub, "unverified")
		return core.Channel{}, fmt.Errorf("channel %s: %w", id, ErrVerification)
	}

	now := m.clock.Now()
	expiresAt := sub.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(m.cfg.TTL)
	}
	ch := core.Channel{
		ID:                 id,
		AccountID:          accountID,
		Status:             core.ChannelCreated,
		ResourceType:       rt,
		ResourceID:         resourceID,
		Token:              token,
		ExternalResourceID: sub.ExternalResourceID,
		ExpiresAt:          expiresAt,
		MessageNumber:      core.NoMessage,
		UpdatedAt:          now,
	}

	err = m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, c := range previous {
			if err := tx.Channels().Save(ctx, c.Close(now)); err != nil {
				return err
			}
		}
		return tx.Channels().Save(ctx, ch)
	})
	if err != nil {
		m.rollback(ctx, p, accountID, sub, "unpersisted")
		return core.Channel{}, fmt.Errorf("persist channel %s: %w", id, err)
	}
	m.logger.Info("channel created", "account", accountID, "channel", id,
		"resource_type", string(rt), "calendar", resourceID, "expires_at", expiresAt)
	return ch, nil
}

// rollback stops a subscription that will not be kept. Failures are logged.
func (m *Manager) rollback(ctx context.Context, p core.Provider, accountID string, sub core.Subscription, reason string) {
	err := p.CloseSubscription(ctx, sub)
	metrics.ObserveChannelOp("close", err)
	if err != nil {
		m.logger.Warn("failed to stop "+reason+" channel", "account", accountID, "channel", sub.ChannelID, "error", err)
	}
}

// CloseChannel stops every live channel of a resource. Channels the provider
// failed to stop stay live and their errors are returned.
func (m *Manager) CloseChannel(ctx context.Context, accountID string, rt core.ResourceType, resourceID string) error {
	channels, err := m.liveChannels(ctx, accountID, rt, resourceID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return nil
	}
	p, err := m.providers.Provider(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resolve provider for %s: %w", accountID, err)
	}
	return m.closeAll(ctx, p, channels)
}

func (m *Manager) closeAll(ctx context.Context, p core.Provider, channels []core.Channel) error {
	var (
		errs   []error
		closed []core.Channel
	)
	now := m.clock.Now()
	for _, c := range channels {
		err := p.CloseSubscription(ctx, c.Subscription())
		metrics.ObserveChannelOp("close", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop channel %s: %w", c.ID, err))
			continue
		}
		closed = append(closed, c.Close(now))
	}

	if len(closed) > 0 {
		err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			for _, c := range closed {
				if err := tx.Channels().Save(ctx, c); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("persist closed channels: %w", err))
		}
	}
	for _, c := range closed {
		m.logger.Info("channel closed", "account", c.AccountID, "channel", c.ID)
	}
	return errors.Join(errs...)
}

// ListChannels returns every channel of an account.
func (m *Manager) ListChannels(ctx context.Context, accountID string) ([]core.Channel, error) {
	var channels []core.Channel
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		channels, err = tx.Channels().ListByAccount(ctx, accountID)
		return err
	})
	return channels, err
}

func (m *Manager) liveChannels(ctx context.Context, accountID string, rt core.ResourceType, resourceID string) ([]core.Channel, error) {
	var channels []core.Channel
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		channels, err = tx.Channels().FindByResource(ctx, accountID, rt, resourceID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find channels: %w", err)
	}
	return channels, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate channel token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
