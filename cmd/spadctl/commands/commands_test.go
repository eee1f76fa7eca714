package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spad-go/internal/dataset"
	"spad-go/internal/features"
	"spad-go/internal/fixtures"
	"spad-go/internal/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	manifestFlag, statusFlag, datasetDirFlag = "", "", ""
	datasetSetFlag, previewRows, verboseFlag = dataset.SetAll, 5, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestModels(t *testing.T) {
	manifest := fixtures.WriteModel(t, t.TempDir())

	out, err := run(t, "models", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, fixtures.ModelName)
	assert.Contains(t, out, "spad-xgboost")

	out, err = run(t, "models", "--manifest", manifest, "--status", "production")
	require.NoError(t, err)
	assert.NotContains(t, out, "spad-xgboost")
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	manifest := fixtures.WriteModel(t, dir)

	out, err := run(t, "verify", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+fixtures.ModelName+"@1.0.0")

	f, err := os.OpenFile(filepath.Join(dir, "RandomForestClassifier.json"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err = run(t, "verify", "--manifest", manifest)
	assert.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestDetect(t *testing.T) {
	t.Setenv("EXTRACTOR_COMMAND", fixtures.FixedExtractor(t, t.TempDir(), fixtures.Vector(-2)))
	t.Setenv("EXTRACTOR_ARGS", "{input} {output}")
	t.Setenv("TMP_DIR", t.TempDir())
	t.Setenv("SPAD_MODEL_NAME", fixtures.ModelName)
	t.Setenv("SPAD_MODEL_VERSION", "")
	manifest := fixtures.WriteModel(t, t.TempDir())
	clip := fixtures.WriteTone(t, filepath.Join(t.TempDir(), "CON_T_0000001.wav"), 16000, 440, 0.1)

	out, err := run(t, "detect", "--manifest", manifest, clip)
	require.NoError(t, err)

	var results []types.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, types.LabelSpoof, results[0].Label)

	out, err = run(t, "detect", "--manifest", manifest, clip, filepath.Join(t.TempDir(), "missing.wav"))
	assert.EqualError(t, err, "1 of 2 files failed")
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.NotEmpty(t, results[1].Error)
}

func TestDatasetSummary(t *testing.T) {
	dir := t.TempDir()
	line := func(label string) string {
		return "0" + strings.Repeat(",1", features.Count-1) + "," + label
	}
	for stem, body := range map[string]string{
		"GTCC-MFCC_train": line("0") + "\n" + line("1") + "\n",
		"GTCC-MFCC_val":   line("0") + "\n",
		"GTCC-MFCC_test":  line("0") + "\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".csv"), []byte(body), 0o644))
	}

	out, err := run(t, "dataset", "summary", "--dir", dir, "--set", "Train")
	require.NoError(t, err)
	var sum dataset.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, 1, sum.Distribution.Counts["Bona fide (1)"])

	out, err = run(t, "dataset", "preview", "--dir", dir, "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"set": "All"`)
}
