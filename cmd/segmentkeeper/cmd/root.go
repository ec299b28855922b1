package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/logging"
	"github.com/spf13/cobra"
)

// Version of the segmentkeeper binary.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "segmentkeeper",
	Short:        "SegmentKeeper user segment rule service",
	Long:         `SegmentKeeper evaluates user segment rules and moves rule instances between environments.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and installs the process logger. extra binds
// command-local flags on top of the persistent ones.
func setup(cmd *cobra.Command, extra config.FlagBindings) (*config.Config, *slog.Logger, error) {
	bindings := config.FlagBindings{"database.url": "db-url"}
	for k, v := range extra {
		bindings[k] = v
	}

	cfg, err := config.LoadConfig(configFile, cmd.Flags(), bindings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logLevel, logFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openQueries opens the configured database and loads the named queries.
// The database must be fully migrated.
func openQueries(ctx context.Context, cfg *config.Config) (*sqlx.DB, *db.Queries, error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL required (--db-url or SK_DATABASE_URL)")
	}
	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RequireMigrated(ctx, database); err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, queries, nil
}
