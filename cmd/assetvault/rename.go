package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/service"
)

var renameCmd = &cobra.Command{
	Use:   "rename <uuid> <new-name>",
	Short: "Rename an asset across every storage tier",
	Long: `Rename an asset's family folders and files in the library, archive,
and reviews trees, then update every version row. The rename rolls
back if any step fails.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		folders := repository.NewFolderRepo(e.db)
		ops := service.NewFileOps(e.assets, folders, e.layout, e.logger)
		newName, err := ops.Rename(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✓ Renamed to %s\n", newName)
		return nil
	},
}
