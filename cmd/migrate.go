package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/actionflow/internal/config"
	"github.com/jmehdipour/actionflow/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create events, actions and receipts tables (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		driver := cfg.Database.Driver
		if driver == "" {
			driver = db.DriverMySQL
		}
		if err := db.Migrate(context.Background(), sqlDB, driver); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		fmt.Printf(">> Migration complete (%s)\n", driver)
		return nil
	},
}
