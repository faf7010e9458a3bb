package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/schema"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a storage root",
	Long: `Create the storage trees (library, archive, reviews, cold storage)
and the library database under the configured storage root.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		roots := []string{
			e.layout.LibraryRoot(),
			e.layout.ArchiveRoot(),
			e.layout.ReviewsRoot(),
			e.layout.ColdStorageRoot(),
			e.layout.MetaDir(),
		}
		for _, root := range roots {
			if err := os.MkdirAll(root, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", root, err)
			}
		}

		if err := schema.New(e.db, e.logger).Initialize(cmd.Context()); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}

		green := color.New(color.FgGreen, color.Bold)
		green.Printf("✓ Initialized asset library at %s\n", e.layout.Root())
		fmt.Printf("  Database: %s (schema v%d)\n", e.dbPath, schema.Version)
		return nil
	},
}
