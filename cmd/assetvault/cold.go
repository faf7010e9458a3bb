package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/cli/ui"
	"github.com/forge3d/assetvault/internal/service"
)

var coldCmd = &cobra.Command{
	Use:   "cold",
	Short: "Cold storage commands",
	Long:  "Move immutable versions out of the active trees and back",
}

var coldMoveCmd = &cobra.Command{
	Use:   "move <uuid>",
	Short: "Move a version's files to cold storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewColdStorageService(e.assets, e.layout, e.logger)
		moved, err := svc.MoveToCold(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✓ Moved %d file(s) to cold storage\n", moved)
		return nil
	},
}

var coldRestoreCmd = &cobra.Command{
	Use:   "restore <uuid>",
	Short: "Restore a version's files from cold storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewColdStorageService(e.assets, e.layout, e.logger)
		restored, err := svc.RestoreFromCold(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✓ Restored %d file(s) from cold storage\n", restored)
		return nil
	},
}

var coldListCmd = &cobra.Command{
	Use:   "list",
	Short: "List versions in cold storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewColdStorageService(e.assets, e.layout, e.logger)
		assets, err := svc.ColdAssets(cmd.Context())
		if err != nil {
			return err
		}

		table := ui.NewTable(os.Stdout, []string{"NAME", "VERSION", "COLD PATH", "UUID"}, false)
		for _, a := range assets {
			table.AddRow(a.Name, a.VersionLabel, a.ColdStoragePath, a.UUID)
		}
		table.Render()
		return nil
	},
}

var coldCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned cold storage directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewColdStorageService(e.assets, e.layout, e.logger)
		removed, err := svc.CleanupOrphans(cmd.Context())
		if err != nil {
			return err
		}
		for _, dir := range removed {
			fmt.Println(dir)
		}
		fmt.Printf("Removed %d orphaned director(ies)\n", len(removed))
		return nil
	},
}

func init() {
	coldCmd.AddCommand(coldMoveCmd)
	coldCmd.AddCommand(coldRestoreCmd)
	coldCmd.AddCommand(coldListCmd)
	coldCmd.AddCommand(coldCleanupCmd)
}
