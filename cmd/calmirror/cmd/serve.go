package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/theakshaypant/calmirror/internal/config"
	"github.com/theakshaypant/calmirror/internal/notify"
	"github.com/theakshaypant/calmirror/internal/scheduler"
	"github.com/theakshaypant/calmirror/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and the sync scheduler",
	Long: `Run the HTTP server (webhooks, /healthz, /readyz, /metrics) together
with the scheduler that performs due syncs and renews expiring channels.

With webhook.enabled set, every configured account gets a channel for each
synced resource before the scheduler starts. The log level follows edits
of the config file without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default http.addr)")
	viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	watchLogLevel(a)

	receiver := notify.NewReceiver(a.store, a.orch,
		notify.WithReauthorizer(a.registry),
		notify.WithLogger(a.logger),
	)
	var webhooks *notify.Handler
	if a.cfg.Webhook.Enabled {
		webhooks = notify.NewHandler(receiver, a.logger)
		for _, id := range a.registry.Accounts() {
			if err := a.channels.Reconcile(ctx, id); err != nil {
				a.logger.Warn("channel reconciliation incomplete", "account", id, "error", err)
			}
		}
	}

	opts := []scheduler.Option{scheduler.WithLogger(a.logger)}
	if a.cfg.Webhook.Enabled {
		opts = append(opts, scheduler.WithRenewer(a.channels))
	}
	sched := scheduler.New(a.store, a.orch, a.cfg.Scheduler, opts...)

	handler := server.NewRouter(a.cfg.HTTP, a.store, webhooks)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, a.cfg.HTTP.Addr, handler, a.logger)
	})
	g.Go(func() error {
		return sched.Run(ctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// watchLogLevel applies log.level edits of the config file as they happen.
func watchLogLevel(a *app) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level, err := config.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			a.logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		if level != a.level.Level() {
			a.level.Set(level)
			a.logger.Info("log level changed", "level", level.String())
		}
	})
	viper.WatchConfig()
}
