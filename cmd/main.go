package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sneaker-review-service/internal/config"
	"sneaker-review-service/internal/logging"
)

const defaultAppName = "SneakerReviewService"

var (
	// Global flags
	envFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sneaker-reviews",
	Short: "Sneaker catalog with user reviews",
	Long: `Sneaker review service: a browsable sneaker catalog where registered
users write, edit and delete their own reviews.

Subcommands:
  serve     - Run the HTTP and gRPC servers
  migrate   - Apply or roll back the database schema
  catalog   - Administer categories, sneakers and users`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file read before the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the process logger from it.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	logger.WithFields(logrus.Fields{
		"app":     defaultAppName,
		"app_env": cfg.AppEnv,
	}).Debug("configuration loaded")
	return cfg, logger, nil
}

// openDB opens and pings a PostgreSQL pool with the configured limits.
func openDB(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
