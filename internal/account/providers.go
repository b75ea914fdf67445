package account

import (
	"context"
	"fmt"

	"github.com/theakshaypant/calmirror/internal/adapter/google"
	"github.com/theakshaypant/calmirror/internal/adapter/outlook"
	"github.com/theakshaypant/calmirror/internal/core"
)

// RateLimit bounds the requests sent to one provider account.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// NewFactory returns a Factory opening the Google and Outlook adapters.
func NewFactory(limits map[string]RateLimit) Factory {
	return func(ctx context.Context, cfg Config) (core.Provider, error) {
		limit := limits[cfg.Provider]
		switch cfg.Provider {
		case google.ProviderID:
			return google.New(ctx, cfg.CredentialsFile, cfg.TokenFile,
				google.WithRateLimit(limit.PerSecond, limit.Burst))
		case outlook.ProviderID:
			if cfg.ClientID == "" {
				return nil, fmt.Errorf("account %s: client_id not configured", cfg.ID)
			}
			return outlook.New(ctx, cfg.ClientID, cfg.TenantID, cfg.TokenFile,
				outlook.WithRateLimit(limit.PerSecond, limit.Burst))
		default:
			return nil, fmt.Errorf("unknown provider: %s (supported: google, outlook)", cfg.Provider)
		}
	}
}
