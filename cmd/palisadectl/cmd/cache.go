package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/palisadehq/palisade/internal/cachectl"
	"github.com/palisadehq/palisade/pkg/secmodel"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the security model cache",
}

// activeControl builds a cache control over the model the configuration
// currently selects, so warm/clear hit the real snapshot when the cache is
// enabled.
func activeControl() *cachectl.Control {
	var model secmodel.SecurityModel = secStore
	if cfg.Get(cachectl.KeyDefaultModel, cachectl.FallbackModel) == cachectl.SentinelCache {
		model = secmodel.NewCache(secStore, snapshotPath)
	}
	return cachectl.New(model, cfg)
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the security model cache is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		control := activeControl()
		if control.IsEnabled() {
			color.Green("Security cache: enabled")
			fmt.Printf("Snapshot: %s\n", snapshotPath)
		} else {
			color.Yellow("Security cache: disabled")
		}
		return nil
	},
}

var cacheEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the security model cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := activeControl().Enable(); err != nil {
			return err
		}
		color.Green("Security cache enabled")
		fmt.Println("Takes effect on the next server start.")
		return nil
	},
}

var cacheDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the security model cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		control := activeControl()
		if err := control.Disable(); err != nil {
			return err
		}
		if err := control.Clear(); err != nil {
			return err
		}
		color.Yellow("Security cache disabled")
		return nil
	},
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Regenerate the security snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		control := activeControl()
		if !control.IsEnabled() {
			color.Yellow("Security cache is not enabled, nothing to warm")
			return nil
		}
		// Warm refuses to persist answers from a model that is not ready; the
		// skip must not read as success.
		if !secStore.Ping() {
			color.Yellow("Security model is not ready, snapshot not written")
			return nil
		}
		if err := control.Warm(); err != nil {
			return err
		}
		color.Green("Security snapshot written to %s", snapshotPath)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the security snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		control := activeControl()
		if !control.IsEnabled() {
			color.Yellow("Security cache is not enabled, nothing to clear")
			return nil
		}
		if err := control.Clear(); err != nil {
			return err
		}
		color.Green("Security snapshot cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheEnableCmd)
	cacheCmd.AddCommand(cacheDisableCmd)
	cacheCmd.AddCommand(cacheWarmCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
