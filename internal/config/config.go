package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the service reads from the environment (.env supported).
type Config struct {
	Port        string
	Environment string

	ModelManifest string
	ModelName     string
	ModelVersion  string

	ExtractorCommand       string
	ExtractorArgs          []string
	ExtractorTimeout       time.Duration
	ExtractorOutputExt     string
	ExtractorVariable      string
	ExtractorMaxConcurrent int

	SamplesDir     string
	DatasetDir     string
	TmpDir         string
	MaxUploadBytes int64
	// MaxAudioDuration bounds the decoded length of an upload.
	MaxAudioDuration time.Duration

	CacheDir      string
	CacheDisabled bool
}

// DefaultExtractorArgs reproduces the MATLAB invocation the models were trained against.
var DefaultExtractorArgs = []string{"-nosplash", "-nodesktop", "-r", "feature_extraction('{input}','{output}')"}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	_ = godotenv.Load() // loads .env
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	args := DefaultExtractorArgs
	if v := strings.TrimSpace(os.Getenv("EXTRACTOR_ARGS")); v != "" {
		args = strings.Fields(v)
	}
	return Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "local"),

		ModelManifest: envOr("SPAD_MODEL_MANIFEST", "models/models.yaml"),
		ModelName:     envOr("SPAD_MODEL_NAME", "spad-random-forest"),
		ModelVersion:  os.Getenv("SPAD_MODEL_VERSION"),

		ExtractorCommand:       envOr("EXTRACTOR_COMMAND", "matlab"),
		ExtractorArgs:          args,
		ExtractorTimeout:       time.Duration(envInt("EXTRACTOR_TIMEOUT_SEC", 30)) * time.Second,
		ExtractorOutputExt:     envOr("EXTRACTOR_OUTPUT_EXT", ".json"),
		ExtractorVariable:      envOr("EXTRACTOR_VARIABLE", "hybridFeatures"),
		ExtractorMaxConcurrent: envInt("EXTRACTOR_MAX_CONCURRENT", 2),

		SamplesDir:       envOr("SAMPLES_DIR", "audio_sample"),
		DatasetDir:       envOr("DATASET_DIR", "extracted_features"),
		TmpDir:           envOr("TMP_DIR", os.TempDir()),
		MaxUploadBytes:   int64(envInt("MAX_UPLOAD_BYTES", 25<<20)),
		MaxAudioDuration: time.Duration(envInt("MAX_AUDIO_SECONDS", 300)) * time.Second,

		CacheDir:      os.Getenv("CACHE_DIR"),
		CacheDisabled: envBool("CACHE_DISABLED", false),
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
