package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates automatically; this is useful to prepare a database
ahead of time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath := config.ExpandPath(v.GetString("database.path"))
			slog.Info("Starting database migration", "database", dbPath)

			store, err := initStorage(cmd.Context(), dbPath)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer func() { _ = store.Close() }()

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database migrations completed: "+dbPath))
			return nil
		},
	}
}
