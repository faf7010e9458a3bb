package main

import (
	"os"
	"os/user"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/cli/ui"
	"github.com/forge3d/assetvault/internal/service"
)

var retireAllVersions bool

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Retirement commands",
	Long:  "Move asset variants to the retired tree and back",
}

var retireMoveCmd = &cobra.Command{
	Use:   "move <uuid>",
	Short: "Retire an asset variant and all of its versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewRetireService(e.assets, e.layout, currentUser(), e.logger)
		retired, err := svc.Retire(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✓ Retired %d version(s)\n", retired)
		return nil
	},
}

var retireRestoreCmd = &cobra.Command{
	Use:   "restore <uuid>",
	Short: "Restore a retired asset variant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewRetireService(e.assets, e.layout, currentUser(), e.logger)
		restored, err := svc.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✓ Restored %d version(s)\n", restored)
		return nil
	},
}

var retireListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retired assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		svc := service.NewRetireService(e.assets, e.layout, currentUser(), e.logger)
		assets, err := svc.RetiredAssets(cmd.Context(), retireAllVersions)
		if err != nil {
			return err
		}

		table := ui.NewTable(os.Stdout, []string{"NAME", "VARIANT", "VERSION", "RETIRED BY", "UUID"}, false)
		for _, a := range assets {
			table.AddRow(a.Name, a.VariantName, a.VersionLabel, a.RetiredBy, a.UUID)
		}
		table.Render()
		return nil
	},
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func init() {
	retireListCmd.Flags().BoolVar(&retireAllVersions, "all-versions", false, "Show every retired version, not just the latest")
	retireCmd.AddCommand(retireMoveCmd)
	retireCmd.AddCommand(retireRestoreCmd)
	retireCmd.AddCommand(retireListCmd)
}
