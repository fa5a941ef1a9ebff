package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-authcore/config"
	"github.com/goliatone/go-authcore/repository"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply pending schema migrations to the configured sqlite or postgres database.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("database.driver is %q, nothing to migrate", cfg.Database.Driver)
	}

	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	cmd.Println("Running migrations...")
	applied, err := repository.Migrate(context.Background(), db)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if len(applied) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}

	for _, name := range applied {
		cmd.Println("applied", name)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}
