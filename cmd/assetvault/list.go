package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/cli/ui"
	"github.com/forge3d/assetvault/internal/repository"
)

var (
	listType    string
	listRetired bool
	listNoColor bool
)

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by asset type (mesh, material, rig, ...)")
	listCmd.Flags().BoolVar(&listRetired, "retired", false, "Include retired assets")
	listCmd.Flags().BoolVar(&listNoColor, "no-color", false, "Disable colored output")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List latest assets in the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		assets, err := e.assets.All(cmd.Context(), repository.ListFilter{
			AssetType:      listType,
			IncludeRetired: listRetired,
		})
		if err != nil {
			return err
		}

		table := ui.NewTable(os.Stdout, []string{"NAME", "TYPE", "VARIANT", "VERSION", "STATUS", "UUID"}, listNoColor)
		for _, a := range assets {
			status := a.Status
			switch {
			case a.IsRetired:
				status = "retired"
			case a.IsCold:
				status = "cold"
			}
			table.AddRow(a.Name, a.AssetType, a.VariantName, a.VersionLabel, status, a.UUID)
		}
		table.Render()
		return nil
	},
}
