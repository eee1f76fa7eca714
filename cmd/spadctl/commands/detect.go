package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"spad-go/internal/service"
	"spad-go/internal/types"
)

var detectCmd = &cobra.Command{
	Use:   "detect <file>...",
	Short: "Classify audio files as spoof or bona fide",
	Long: `Run the full detection pipeline (external extractor, scaler, classifier)
on each file and print one JSON result per file.

Examples:
  spadctl detect audio_sample/CON_T_0000001.wav
  EXTRACTOR_COMMAND=./extract.sh EXTRACTOR_ARGS="{input} {output}" spadctl detect *.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		cfg.CacheDisabled = true

		svc, err := service.Build(cmd.Context(), cfg, newLogger(cmd))
		if err != nil {
			return err
		}
		defer svc.Close()

		failed := 0
		results := make([]types.DetectionResult, 0, len(args))
		for _, path := range args {
			res, err := detectFile(cmd, svc, path)
			if err != nil {
				failed++
				res.Error = err.Error()
				res.Audio.Filename = filepath.Base(path)
			}
			results = append(results, res)
		}
		if err := outputJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func detectFile(cmd *cobra.Command, svc *service.Service, path string) (types.DetectionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.DetectionResult{}, err
	}
	defer f.Close()
	return svc.Processor.ProcessUpload(cmd.Context(), filepath.Base(path), f)
}
