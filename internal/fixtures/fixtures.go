// Package fixtures builds model artifacts, extractor scripts and audio clips
// for tests across the module.
package fixtures

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"spad-go/internal/features"
	"spad-go/internal/registry"
)

const ModelName = "spad-random-forest"

// Vector is a feature row whose first column is first and the rest zero.
func Vector(first float64) []float64 {
	v := make([]float64, features.Count)
	v[0] = first
	return v
}

// JSONOutput renders a one-row matrix the way the extractor writes it.
func JSONOutput(variable string, row []float64) string {
	b, _ := json.Marshal(map[string][][]float64{variable: {row}})
	return string(b)
}

// WriteModel writes a standard scaler (mean 0, scale 2) and a single-stump forest
// that predicts spoof when LogEnergy <= 0 and bona fide otherwise, plus a manifest
// listing it as production next to a comparison-only entry. Returns the manifest path.
func WriteModel(t testing.TB, dir string) string {
	t.Helper()

	mean := make([]float64, features.Count)
	scale := make([]float64, features.Count)
	for i := range scale {
		scale[i] = 2
	}
	writeJSON(t, filepath.Join(dir, "Scaler.json"), map[string]any{
		"mean": mean, "scale": scale, "feature_names": features.Names(),
	})
	writeJSON(t, filepath.Join(dir, "RandomForestClassifier.json"), map[string]any{
		"n_features": features.Count,
		"classes":    []int{0, 1},
		"trees": []map[string]any{{
			"children_left":  []int{1, -1, -1},
			"children_right": []int{2, -1, -1},
			"feature":        []int{0, -2, -2},
			"threshold":      []float64{0, -2, -2},
			"value":          [][]float64{{10, 10}, {10, 0}, {0, 10}},
		}},
	})

	scalerSum, err := registry.FileDigest(filepath.Join(dir, "Scaler.json"))
	require.NoError(t, err)
	forestSum, err := registry.FileDigest(filepath.Join(dir, "RandomForestClassifier.json"))
	require.NoError(t, err)

	manifest := fmt.Sprintf(`models:
  - name: %s
    version: "1.0.0"
    algorithm: random_forest
    status: production
    feature_count: %d
    scaler: {path: Scaler.json, sha256: "%s"}
    classifier: {path: RandomForestClassifier.json, sha256: "%s"}
    metrics: {accuracy: 0.82, f1_weighted: 0.85, roc_auc: 0.78}
  - name: spad-xgboost
    version: "1.0.0"
    algorithm: xgboost
    status: archived
    feature_count: %d
    metrics: {accuracy: 0.80, f1_weighted: 0.83, roc_auc: 0.77}
`, ModelName, features.Count, scalerSum, forestSum, features.Count)
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func writeJSON(t testing.TB, path string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// FixedExtractor writes row to the output path ($2) for any input.
func FixedExtractor(t testing.TB, dir string, row []float64) string {
	t.Helper()
	return WriteScript(t, dir, "extract-fixed.sh",
		fmt.Sprintf("printf '%%s' '%s' > \"$2\"", JSONOutput("hybridFeatures", row)))
}

// EchoExtractor reads a number from the input file ($1) and emits it as LogEnergy.
func EchoExtractor(t testing.TB, dir string) string {
	t.Helper()
	zeros := strings.Repeat(",0", features.Count-1)
	return WriteScript(t, dir, "extract-echo.sh",
		fmt.Sprintf("v=$(cat \"$1\")\nprintf '{\"hybridFeatures\":[[%%s%s]]}' \"$v\" > \"$2\"", zeros))
}

// WriteTone writes a 16-bit mono WAV sine tone and returns its path.
func WriteTone(t testing.TB, path string, sampleRate int, freq float64, seconds float64) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n := int(float64(sampleRate) * seconds)
	data := make([]int, n)
	for i := range data {
		data[i] = int(0.5 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

// ToneBytes returns the bytes of a WAV tone.
func ToneBytes(t testing.TB, sampleRate int, freq, seconds float64) []byte {
	t.Helper()
	path := WriteTone(t, filepath.Join(t.TempDir(), "tone.wav"), sampleRate, freq, seconds)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}
