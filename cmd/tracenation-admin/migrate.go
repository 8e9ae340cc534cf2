package main

import (
	"database/sql"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracenation/tracenation-api/internal/bootstrap"
	"github.com/tracenation/tracenation-api/internal/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.withDB(func(db *sql.DB) error {
				if err := bootstrap.RunMigrations(ctx, db, a.logger); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out, "migrations applied")
				return err
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List embedded migrations and when they were applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.withDB(func(db *sql.DB) error {
				status, err := migrate.Status(ctx, db)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				return a.printMigrations(status)
			})
		},
	})
	return cmd
}

func (a *app) printMigrations(status []migrate.Migration) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "VERSION\tAPPLIED AT"); err != nil {
		return err
	}
	for _, m := range status {
		applied := "pending"
		if m.Applied() {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", m.Version, applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}
