package commands

import (
	"github.com/spf13/cobra"

	"spad-go/internal/dataset"
)

var (
	datasetDirFlag string
	datasetSetFlag string
	previewRows    int
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect the extracted feature tables",
}

var datasetSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Class distribution of a split (All, Train, Validation, Test)",
	RunE: func(cmd *cobra.Command, args []string) error {
		splits, err := loadSplits(cmd)
		if err != nil {
			return err
		}
		sum, err := splits.Summarize(datasetSetFlag)
		if err != nil {
			return err
		}
		return outputJSON(cmd.OutOrStdout(), sum)
	},
}

var datasetPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the first rows of a split",
	RunE: func(cmd *cobra.Command, args []string) error {
		splits, err := loadSplits(cmd)
		if err != nil {
			return err
		}
		p, err := splits.Preview(datasetSetFlag, previewRows)
		if err != nil {
			return err
		}
		return outputJSON(cmd.OutOrStdout(), p)
	},
}

func loadSplits(cmd *cobra.Command) (dataset.Splits, error) {
	dir := datasetDirFlag
	if dir == "" {
		dir = loadConfig().DatasetDir
	}
	return dataset.LoadSplits(dir, newLogger(cmd))
}

func init() {
	datasetCmd.PersistentFlags().StringVar(&datasetDirFlag, "dir", "", "directory holding GTCC-MFCC_{train,val,test} (default $DATASET_DIR)")
	datasetCmd.PersistentFlags().StringVar(&datasetSetFlag, "set", dataset.SetAll, "All, Train, Validation or Test")
	datasetPreviewCmd.Flags().IntVarP(&previewRows, "rows", "n", 5, "number of rows")
	datasetCmd.AddCommand(datasetSummaryCmd, datasetPreviewCmd)
}
