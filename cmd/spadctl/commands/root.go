package commands

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"spad-go/internal/config"
	"spad-go/internal/logger"
)

var (
	manifestFlag string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:           "spadctl",
	Short:         "Spoof audio detection toolkit",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestFlag, "manifest", "", "model manifest (default $SPAD_MODEL_MANIFEST)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(detectCmd, modelsCmd, verifyCmd, datasetCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() config.Config {
	cfg := config.Load()
	if manifestFlag != "" {
		cfg.ModelManifest = manifestFlag
	}
	return cfg
}

func newLogger(cmd *cobra.Command) *logger.Logger {
	if verboseFlag {
		return logger.NewWithOutput(cmd.ErrOrStderr())
	}
	return logger.Discard()
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
