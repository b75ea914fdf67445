package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theakshaypant/calmirror/internal/config"
	"github.com/theakshaypant/calmirror/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Apply the embedded SQL migrations to the PostgreSQL database named by database.dsn.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Database.InMemory() {
		return fmt.Errorf("database.dsn selects the in-memory store, nothing to migrate")
	}

	pool, err := postgres.Open(cmd.Context(), cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.ApplyMigrations(cmd.Context(), pool)
	for _, name := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s\n", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
	}
	return nil
}
