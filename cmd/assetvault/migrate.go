package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database schema commands",
	Long:  "Inspect and upgrade the library database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Upgrade the schema to the current version",
	Long: `Apply any pending schema changes. Upgrades are additive: new tables
and columns are created, existing data is preserved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		s := schema.New(e.db, e.logger)

		before, err := s.CurrentVersion(ctx)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("upgrading schema: %w", err)
		}

		green := color.New(color.FgGreen, color.Bold)
		if before == schema.Version {
			fmt.Println("Schema already up to date")
		} else {
			green.Printf("✓ Upgraded schema v%d -> v%d\n", before, schema.Version)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema status",
	Long:  "Display the database schema version against the version this build expects",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		current, err := schema.New(e.db, e.logger).CurrentVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}

		fmt.Printf("Database: %s\n", e.dbPath)
		fmt.Printf("Schema version: %d (expected %d)\n", current, schema.Version)
		switch {
		case current == schema.Version:
			color.New(color.FgGreen).Println("✓ up to date")
		case current < schema.Version:
			color.New(color.FgYellow).Println("○ upgrade pending, run: assetvault migrate up")
		default:
			color.New(color.FgRed).Println("✗ database is newer than this build")
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
