package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-minisplit/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-minisplit/migrations"
)

var errDatabaseDisabled = errors.New("database is disabled (database.enabled: false)")

func newDBCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or roll back the command log schema",
	}
	cmd.AddCommand(newDBStatusCmd(opts), newDBMigrateCmd(opts), newDBRollbackCmd(opts))
	return cmd
}

// openRawDatabase opens the command log without applying migrations.
func openRawDatabase(opts *options) (*database.DB, error) {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled {
		return nil, errDatabaseDisabled
	}
	db, err := database.Open(database.ConfigFrom(cfg.Database, migrations.FS))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func newDBStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openRawDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, pending, err := db.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED")
			for _, r := range applied {
				fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
			}
			for _, m := range pending {
				fmt.Fprintf(tw, "%s\tpending\t-\n", m.Version)
			}
			return tw.Flush()
		},
	}
}

func newDBMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openRawDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "up to date")
			return nil
		},
	}
}

func newDBRollbackCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openRawDatabase(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := db.Rollback(cmd.Context())
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s_%s\n", m.Version, m.Name)
			return nil
		},
	}
}
