package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sneaker-review-service/internal/store"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply or roll back the embedded database schema.

Subcommands:
  up       - Apply pending migrations
  down     - Roll back every migration
  version  - Show the applied schema version`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(mg *store.Migrator) error {
			if err := mg.Up(); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(mg *store.Migrator) error {
			if err := mg.Down(); err != nil {
				return err
			}
			cmd.Println("migrations rolled back")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(mg *store.Migrator) error {
			version, dirty, ok, err := mg.Version()
			if err != nil {
				return err
			}
			if !ok {
				cmd.Println("no migrations applied")
				return nil
			}
			cmd.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// withMigrator runs fn on a dedicated pool; closing the migrator closes it.
func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cmd.Context(), cfg.Postgres)
	if err != nil {
		return err
	}
	mg, err := store.NewMigrator(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.WithError(err).Warn("error closing migrator")
		}
	}()
	return fn(mg)
}
