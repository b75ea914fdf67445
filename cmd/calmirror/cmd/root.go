package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theakshaypant/calmirror/internal/account"
	"github.com/theakshaypant/calmirror/internal/calsync"
	"github.com/theakshaypant/calmirror/internal/channel"
	"github.com/theakshaypant/calmirror/internal/config"
	"github.com/theakshaypant/calmirror/internal/store"
	"github.com/theakshaypant/calmirror/internal/store/memory"
	"github.com/theakshaypant/calmirror/internal/store/postgres"
)

var (
	cfgFile   string
	accountID string
)

// envKeys maps nested keys to variable names: database.dsn -> DATABASE_DSN.
var envKeys = strings.NewReplacer(".", "_")

var rootCmd = &cobra.Command{
	Use:   "calmirror",
	Short: "Keep a local mirror of your Google and Outlook calendars",
	Long: `calmirror keeps a local copy of the calendars of one or more accounts
in sync with the provider, incrementally where it can and in full where
it must, and serves webhooks so that changes land within seconds.

Run 'calmirror auth' once per account, 'calmirror enable' to start
mirroring and 'calmirror serve' to keep the mirror up to date.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (inherited by all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/calmirror/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&accountID, "account", "a", "", "account to work on (default: default_account)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "calmirror"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables, e.g. CALMIRROR_DATABASE_DSN
	viper.SetEnvPrefix("CALMIRROR")
	viper.SetEnvKeyReplacer(envKeys)
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// Read config file if it exists
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// configPath is the file account commands edit.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return config.DefaultPath()
}

// app holds the components every command builds on.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	level    *slog.LevelVar
	store    store.Store
	registry *account.Registry
	orch     *calsync.Orchestrator
	channels *channel.Manager
}

// newApp loads the config and opens the store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, level := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	registry := account.NewRegistry(cfg.Accounts, account.NewFactory(cfg.RateLimits), account.WithLogger(logger))
	orch := calsync.New(st, registry,
		calsync.WithPolicy(cfg.Policy),
		calsync.WithReauthorizer(registry),
		calsync.WithLogger(logger),
	)
	channels := channel.NewManager(st, registry, cfg.Webhook.Config, channel.WithLogger(logger))

	return &app{
		cfg:      cfg,
		logger:   logger,
		level:    level,
		store:    st,
		registry: registry,
		orch:     orch,
		channels: channels,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// account resolves --account against the configured accounts.
func (a *app) selectedAccount() (account.Config, error) {
	return a.cfg.Account(accountID)
}

func openStore(ctx context.Context, db config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	if db.InMemory() {
		logger.Debug("using in-memory mirror store")
		return memory.New(), nil
	}

	pool, err := postgres.Open(ctx, db.DSN)
	if err != nil {
		return nil, err
	}
	if db.AutoMigrate {
		applied, err := postgres.ApplyMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		for _, name := range applied {
			logger.Info("applied migration", "name", name)
		}
	}
	return postgres.New(pool), nil
}
