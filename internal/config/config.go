// Package config turns the viper settings tree into a validated Config.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/theakshaypant/calmirror/internal/account"
	"github.com/theakshaypant/calmirror/internal/channel"
	"github.com/theakshaypant/calmirror/internal/scheduler"
	"github.com/theakshaypant/calmirror/internal/server"
	"github.com/theakshaypant/calmirror/internal/syncstate"
)

// MemoryDSN selects the in-memory mirror store.
const MemoryDSN = "memory://"

type Config struct {
	Database   DatabaseConfig
	HTTP       server.Config
	Webhook    WebhookConfig
	Policy     syncstate.Policy
	Scheduler  scheduler.Config
	Log        LogConfig
	RateLimits map[string]account.RateLimit
	Accounts   []account.Config
	// DefaultAccount is used by commands run without --account.
	DefaultAccount string
}

type DatabaseConfig struct {
	DSN         string
	AutoMigrate bool
}

// InMemory reports whether the DSN selects the in-memory store.
func (d DatabaseConfig) InMemory() bool {
	return strings.HasPrefix(d.DSN, MemoryDSN)
}

type WebhookConfig struct {
	Enabled bool
	channel.Config
}

type LogConfig struct {
	Level  string
	Format string
}

// SetDefaults registers the default of every setting.
func SetDefaults(v *viper.Viper) {
	p := syncstate.DefaultPolicy()
	s := scheduler.DefaultConfig()

	v.SetDefault("database.dsn", MemoryDSN)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_enabled", true)
	v.SetDefault("http.webhook_rate", 50.0)
	v.SetDefault("http.webhook_burst", 100)

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.ttl", 7*24*time.Hour)

	v.SetDefault("sync.past_months", p.PastMonths)
	v.SetDefault("sync.future_months", p.FutureMonths)
	v.SetDefault("sync.full_sync_cutoff", p.FullSyncCutoff)
	v.SetDefault("sync.calendar_interval", p.CalendarInterval)
	v.SetDefault("sync.list_interval", p.ListInterval)
	v.SetDefault("sync.max_backoff", p.MaxBackoff)
	v.SetDefault("sync.fresh_for", p.FreshFor)

	v.SetDefault("scheduler.interval", s.Interval)
	v.SetDefault("scheduler.workers", s.Workers)
	v.SetDefault("scheduler.batch_size", s.BatchSize)
	v.SetDefault("scheduler.renew_ahead", s.RenewAhead)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limits.google.per_second", 5.0)
	v.SetDefault("rate_limits.google.burst", 10)
	v.SetDefault("rate_limits.outlook.per_second", 4.0)
	v.SetDefault("rate_limits.outlook.burst", 8)
}

// Load reads the settings tree and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			DSN:         v.GetString("database.dsn"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		HTTP: server.Config{
			Addr:           v.GetString("http.addr"),
			MetricsEnabled: v.GetBool("http.metrics_enabled"),
			WebhookRate:    v.GetFloat64("http.webhook_rate"),
			WebhookBurst:   v.GetInt("http.webhook_burst"),
		},
		Webhook: WebhookConfig{
			Enabled: v.GetBool("webhook.enabled"),
			Config: channel.Config{
				BaseURL: v.GetString("webhook.base_url"),
				TTL:     v.GetDuration("webhook.ttl"),
			},
		},
		Policy: syncstate.Policy{
			PastMonths:       v.GetInt("sync.past_months"),
			FutureMonths:     v.GetInt("sync.future_months"),
			FullSyncCutoff:   v.GetDuration("sync.full_sync_cutoff"),
			CalendarInterval: v.GetDuration("sync.calendar_interval"),
			ListInterval:     v.GetDuration("sync.list_interval"),
			MaxBackoff:       v.GetDuration("sync.max_backoff"),
			FreshFor:         v.GetDuration("sync.fresh_for"),
		},
		Scheduler: scheduler.Config{
			Interval:   v.GetDuration("scheduler.interval"),
			Workers:    v.GetInt("scheduler.workers"),
			BatchSize:  v.GetInt("scheduler.batch_size"),
			RenewAhead: v.GetDuration("scheduler.renew_ahead"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimits:     make(map[string]account.RateLimit),
		DefaultAccount: v.GetString("default_account"),
	}

	for provider := range v.GetStringMap("rate_limits") {
		key := "rate_limits." + provider
		cfg.RateLimits[provider] = account.RateLimit{
			PerSecond: v.GetFloat64(key + ".per_second"),
			Burst:     v.GetInt(key + ".burst"),
		}
	}

	ids := make([]string, 0)
	for id := range v.GetStringMap("accounts") {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		key := "accounts." + id
		cfg.Accounts = append(cfg.Accounts, account.Config{
			ID:              id,
			Provider:        v.GetString(key + ".provider"),
			CredentialsFile: ExpandPath(v.GetString(key + ".credentials_file")),
			TokenFile:       ExpandPath(v.GetString(key + ".token_file")),
			ClientID:        v.GetString(key + ".client_id"),
			TenantID:        v.GetString(key + ".tenant_id"),
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Policy.PastMonths < 0 || c.Policy.FutureMonths < 0 {
		errs = append(errs, errors.New("sync.past_months and sync.future_months must not be negative"))
	}
	if c.Policy.CalendarInterval <= 0 || c.Policy.ListInterval <= 0 {
		errs = append(errs, errors.New("sync intervals must be positive"))
	}
	if c.Scheduler.Workers < 0 {
		errs = append(errs, errors.New("scheduler.workers must not be negative"))
	}
	if c.Webhook.Enabled {
		if u, err := url.Parse(c.Webhook.BaseURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("webhook.base_url must be an absolute https URL, got %q", c.Webhook.BaseURL))
		}
		if c.Webhook.TTL <= 0 {
			errs = append(errs, errors.New("webhook.ttl must be positive"))
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	for _, a := range c.Accounts {
		switch a.Provider {
		case "google":
			if a.CredentialsFile == "" {
				errs = append(errs, fmt.Errorf("accounts.%s.credentials_file is required for google", a.ID))
			}
		case "outlook":
			if a.ClientID == "" {
				errs = append(errs, fmt.Errorf("accounts.%s.client_id is required for outlook", a.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("accounts.%s.provider: unknown provider %q (supported: google, outlook)", a.ID, a.Provider))
		}
		if a.TokenFile == "" {
			errs = append(errs, fmt.Errorf("accounts.%s.token_file is required", a.ID))
		}
	}
	if c.DefaultAccount != "" {
		if _, err := c.Account(c.DefaultAccount); err != nil {
			errs = append(errs, fmt.Errorf("default_account: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Account picks the account a command works on: the given id, the default
// account, or the only configured account.
func (c *Config) Account(id string) (account.Config, error) {
	if id == "" {
		id = c.DefaultAccount
	}
	if id == "" && len(c.Accounts) == 1 {
		return c.Accounts[0], nil
	}
	if id == "" {
		return account.Config{}, errors.New("no account selected: pass --account or set default_account")
	}
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return account.Config{}, fmt.Errorf("%s: %w", id, account.ErrUnknownAccount)
}

// ExpandPath resolves a leading ~/ to the home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
