package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forge3d/assetvault/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the storage trees for external changes",
	Long: `Monitor the library and archive trees and report files changed by
external tools. Changes are batched over a short quiet interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		watcher, err := watch.NewLibraryWatcher(e.layout, e.cfg.Watch.Patterns, func(changed []string) error {
			for _, path := range changed {
				fmt.Println(path)
			}
			return nil
		}, e.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()

		fmt.Printf("Watching %s (Ctrl+C to stop)\n", e.layout.Root())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		return nil
	},
}
