package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/cli/ui"
	"github.com/forge3d/assetvault/internal/store"
)

var statsNoColor bool

func init() {
	statsCmd.Flags().BoolVar(&statsNoColor, "no-color", false, "Disable colored output")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.library.Stats(cmd.Context())
		if err != nil {
			return err
		}

		table := ui.NewKeyValueTable(os.Stdout, statsNoColor)
		table.AddRow("Total assets", fmt.Sprintf("%d", stats.TotalAssets))
		table.AddRow("Cold storage", fmt.Sprintf("%d", stats.ColdAssets))
		table.AddRow("Favorites", fmt.Sprintf("%d", stats.Favorites))

		types := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			table.AddRow("  "+t, fmt.Sprintf("%d", stats.ByType[t]))
		}

		if size, err := store.FileSize(e.dbPath); err == nil {
			table.AddRow("Database size", fmt.Sprintf("%.1f MB", float64(size)/(1024*1024)))
		}
		table.Render()

		problems, err := store.IntegrityCheck(cmd.Context(), e.db)
		if err != nil {
			return err
		}
		if len(problems) == 0 {
			color.New(color.FgGreen).Println("✓ integrity check passed")
		} else {
			color.New(color.FgRed).Printf("✗ integrity check found %d problem(s)\n", len(problems))
			for _, p := range problems {
				fmt.Println("  " + p)
			}
		}
		return nil
	},
}
