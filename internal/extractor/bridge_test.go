package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spad-go/internal/features"
	"spad-go/internal/fixtures"
	"spad-go/internal/logger"
)

func newBridge(t *testing.T, script string, mutate ...func(*Config)) (*Bridge, string) {
	t.Helper()
	tmp := t.TempDir()
	cfg := Config{
		Command:       script,
		Args:          []string{InputPlaceholder, OutputPlaceholder},
		Timeout:       5 * time.Second,
		MaxConcurrent: 2,
		TmpDir:        tmp,
		PollInterval:  50 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	b, err := New(cfg, logger.Discard())
	require.NoError(t, err)
	return b, tmp
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.wav")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "intermediate files left behind")
}

func TestExtractReadsVectorAndCleansUp(t *testing.T) {
	scripts := t.TempDir()
	want := fixtures.Vector(-3.5)
	b, tmp := newBridge(t, fixtures.FixedExtractor(t, scripts, want))

	got, err := b.Extract(context.Background(), writeInput(t, "RIFF"))
	require.NoError(t, err)

	assert.Equal(t, want, []float64(got))
	assertEmptyDir(t, tmp)
}

func TestExtractConcurrentCallsDoNotShareOutput(t *testing.T) {
	b, tmp := newBridge(t, fixtures.EchoExtractor(t, t.TempDir()), func(c *Config) { c.MaxConcurrent = 4 })

	const n = 8
	var wg sync.WaitGroup
	got := make([]float64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := b.Extract(context.Background(), writeInput(t, fmt.Sprint(i+1)))
			errs[i] = err
			if err == nil {
				got[i] = v[0]
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, float64(i+1), got[i])
	}
	assertEmptyDir(t, tmp)
}

func TestExtractWaitsForLateOutput(t *testing.T) {
	body := fmt.Sprintf("( sleep 0.3; printf '%%s' '%s' > \"$2\" ) >/dev/null 2>&1 &\nexit 0",
		fixtures.JSONOutput("hybridFeatures", fixtures.Vector(1)))
	script := fixtures.WriteScript(t, t.TempDir(), "detached.sh", body)
	b, _ := newBridge(t, script, func(c *Config) { c.Timeout = 3 * time.Second })

	v, err := b.Extract(context.Background(), writeInput(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[0])
}

func TestExtractWaitsForPartiallyWrittenOutput(t *testing.T) {
	doc := fixtures.JSONOutput("hybridFeatures", fixtures.Vector(4))
	half := len(doc) / 2
	body := fmt.Sprintf("( printf '%%s' '%s' > \"$2\"; sleep 0.5; printf '%%s' '%s' >> \"$2\" ) >/dev/null 2>&1 &\nexit 0",
		doc[:half], doc[half:])
	script := fixtures.WriteScript(t, t.TempDir(), "slow-writer.sh", body)
	b, tmp := newBridge(t, script, func(c *Config) { c.Timeout = 3 * time.Second })

	v, err := b.Extract(context.Background(), writeInput(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, 4.0, v[0])
	assertEmptyDir(t, tmp)
}

func TestExtractTimesOutWaitingForSlot(t *testing.T) {
	b, tmp := newBridge(t, fixtures.FixedExtractor(t, t.TempDir(), fixtures.Vector(0)), func(c *Config) {
		c.MaxConcurrent = 1
		c.Timeout = 200 * time.Millisecond
	})
	require.NoError(t, b.sem.Acquire(context.Background(), 1))
	defer b.sem.Release(1)

	start := time.Now()
	_, err := b.Extract(context.Background(), writeInput(t, "x"))

	require.ErrorIs(t, err, ErrExtractionTimeout)
	assert.Contains(t, err.Error(), "slot")
	assert.Less(t, time.Since(start), 2*time.Second)
	assertEmptyDir(t, tmp)
}

func TestExtractTimesOutWhenOutputNeverAppears(t *testing.T) {
	script := fixtures.WriteScript(t, t.TempDir(), "silent.sh", "exit 0")
	b, tmp := newBridge(t, script, func(c *Config) { c.Timeout = 300 * time.Millisecond })

	_, err := b.Extract(context.Background(), writeInput(t, "x"))

	assert.ErrorIs(t, err, ErrExtractionTimeout)
	assertEmptyDir(t, tmp)
}

func TestExtractKillsHungTool(t *testing.T) {
	script := fixtures.WriteScript(t, t.TempDir(), "hang.sh", "exec sleep 30")
	b, tmp := newBridge(t, script, func(c *Config) { c.Timeout = 200 * time.Millisecond })

	start := time.Now()
	_, err := b.Extract(context.Background(), writeInput(t, "x"))

	assert.ErrorIs(t, err, ErrExtractionTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assertEmptyDir(t, tmp)
}

func TestExtractHonorsCallerCancellation(t *testing.T) {
	script := fixtures.WriteScript(t, t.TempDir(), "hang.sh", "exec sleep 30")
	b, _ := newBridge(t, script)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := b.Extract(ctx, writeInput(t, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExtractionTimeout)
}

func TestExtractNonZeroExit(t *testing.T) {
	script := fixtures.WriteScript(t, t.TempDir(), "fail.sh", "echo 'cannot decode audio' >&2\nexit 3")
	b, tmp := newBridge(t, script)

	_, err := b.Extract(context.Background(), writeInput(t, "x"))

	require.ErrorIs(t, err, ErrExtractorFailed)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "cannot decode audio")
	assertEmptyDir(t, tmp)
}

func TestExtractMissingCommand(t *testing.T) {
	b, _ := newBridge(t, filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := b.Extract(context.Background(), writeInput(t, "x"))
	assert.ErrorIs(t, err, ErrExtractorFailed)
}

func TestExtractMissingInput(t *testing.T) {
	b, _ := newBridge(t, fixtures.FixedExtractor(t, t.TempDir(), fixtures.Vector(0)))
	_, err := b.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractMalformedOutput(t *testing.T) {
	zeros := strings.Repeat("0,", features.Count-1) + "0"
	tests := []struct {
		name string
		out  string
	}{
		{"wrong variable", `{"features":[[` + zeros + `]]}`},
		{"short row", `{"hybridFeatures":[[1,2,3]]}`},
		{"two rows", `{"hybridFeatures":[[` + zeros + `],[` + zeros + `]]}`},
		{"not numeric", `{"hybridFeatures":"oops"}`},
		{"not json", `hybridFeatures = [1 2 3]`},
		{"null cell", `{"hybridFeatures":[[null` + strings.Repeat(",0", features.Count-1) + `]]}`},
		{"null flat row", `{"hybridFeatures":[0` + strings.Repeat(",0", features.Count-2) + `,null]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := fixtures.WriteScript(t, t.TempDir(), "bad.sh", fmt.Sprintf("printf '%%s' '%s' > \"$2\"", tt.out))
			b, tmp := newBridge(t, script, func(c *Config) { c.Timeout = 400 * time.Millisecond })

			_, err := b.Extract(context.Background(), writeInput(t, "x"))

			assert.ErrorIs(t, err, ErrMalformedOutput)
			assertEmptyDir(t, tmp)
		})
	}
}

func TestExtractFlatJSONRow(t *testing.T) {
	zeros := strings.Repeat(",0", features.Count-1)
	script := fixtures.WriteScript(t, t.TempDir(), "flat.sh", fmt.Sprintf("printf '%%s' '{\"hybridFeatures\":[7%s]}' > \"$2\"", zeros))
	b, _ := newBridge(t, script)

	v, err := b.Extract(context.Background(), writeInput(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, 7.0, v[0])
}

func TestExtractCSVOutput(t *testing.T) {
	row := "2.5" + strings.Repeat(", 0", features.Count-1)
	script := fixtures.WriteScript(t, t.TempDir(), "csv.sh", fmt.Sprintf("echo '%s' > \"$2\"", row))
	b, _ := newBridge(t, script, func(c *Config) { c.OutputExt = "csv" })

	v, err := b.Extract(context.Background(), writeInput(t, "x"))
	require.NoError(t, err)
	assert.Equal(t, 2.5, v[0])
}

func TestExtractCSVRejectsNaN(t *testing.T) {
	row := "NaN" + strings.Repeat(",0", features.Count-1)
	script := fixtures.WriteScript(t, t.TempDir(), "nan.sh", fmt.Sprintf("echo '%s' > \"$2\"", row))
	b, _ := newBridge(t, script, func(c *Config) {
		c.OutputExt = ".csv"
		c.Timeout = 400 * time.Millisecond
	})

	_, err := b.Extract(context.Background(), writeInput(t, "x"))
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.NotErrorIs(t, err, ErrExtractionTimeout)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, logger.Discard())
	assert.Error(t, err)

	_, err = New(Config{Command: "matlab", OutputExt: ".mat"}, logger.Discard())
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
