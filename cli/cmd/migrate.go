package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/telhawk-webhooks/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Postgres record store migrations",
	Long:  "Apply or roll back the webhook_events schema used by the Postgres record backend",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := databaseURL(cmd)
		if err != nil {
			return err
		}
		if err := migrations.Up(dsn); err != nil {
			return err
		}
		output.Success("Migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := databaseURL(cmd)
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		if err := migrations.Down(dsn, steps); err != nil {
			return err
		}
		output.Success("Rolled back %d migration(s)", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := databaseURL(cmd)
		if err != nil {
			return err
		}
		version, dirty, err := migrations.Version(dsn)
		if err != nil {
			return err
		}
		if dirty {
			output.Warn("Schema version %d (dirty)", version)
			return nil
		}
		output.Info("Schema version %d", version)
		return nil
	},
}

func databaseURL(cmd *cobra.Command) (string, error) {
	dsn, _ := cmd.Flags().GetString("database-url")
	if dsn == "" {
		return "", fmt.Errorf("--database-url is required (or set WEBHOOKS_RECORDS_POSTGRES_URL)")
	}
	return dsn, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	migrateCmd.PersistentFlags().String("database-url", envOr("WEBHOOKS_RECORDS_POSTGRES_URL", ""), "Postgres connection URL")
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
}
