package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"repair-tracker-backend/config"
	"repair-tracker-backend/internal/db"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), *configPath)
		},
	}
}

func runMigrate(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer sqlDB.Close()

	fmt.Fprintf(out, "Schema is up to date (%s).\n", cfg.Database.Driver)
	return nil
}
