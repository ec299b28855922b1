package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("database URL required (--db-url or SK_DATABASE_URL)")
		}
		database, err := db.Open(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.MigrateUp(cmd.Context(), database); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", database.DriverName())
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("database URL required (--db-url or SK_DATABASE_URL)")
		}
		database, err := db.Open(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		statuses, err := db.MigrateStatus(cmd.Context(), database)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT\tDURATION")
		for _, s := range statuses {
			state, appliedAt, duration := "pending", "-", "-"
			if s.Applied {
				state, appliedAt, duration = "applied", s.AppliedAt, fmt.Sprintf("%dms", s.ExecutionMs)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, state, appliedAt, duration)
		}
		return w.Flush()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
