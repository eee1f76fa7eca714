package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"spad-go/internal/registry"
)

var statusFlag string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registry entries and their evaluation metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Open(loadConfig().ModelManifest)
		if err != nil {
			return err
		}
		return outputJSON(cmd.OutOrStdout(), reg.List(registry.ModelStatus(statusFlag)))
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check digests and feature schema of every loadable model",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.Open(loadConfig().ModelManifest)
		if err != nil {
			return err
		}
		report := reg.Verify()
		ids := make([]string, 0, len(report))
		for id := range report {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		bad := 0
		out := cmd.OutOrStdout()
		for _, id := range ids {
			if err := report[id]; err != nil {
				bad++
				fmt.Fprintf(out, "FAIL %s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(out, "ok   %s\n", id)
		}
		if bad > 0 {
			return fmt.Errorf("%d model(s) failed verification", bad)
		}
		return nil
	},
}

func init() {
	modelsCmd.Flags().StringVar(&statusFlag, "status", "", "only entries with this status")
}
