package processor_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spad-go/internal/audio"
	"spad-go/internal/cache"
	"spad-go/internal/extractor"
	"spad-go/internal/fixtures"
	"spad-go/internal/logger"
	"spad-go/internal/pipeline"
	"spad-go/internal/processor"
	"spad-go/internal/registry"
	"spad-go/internal/types"
	"spad-go/internal/verdict"
)

type stubDetector struct {
	res   pipeline.Result
	err   error
	calls int
	seen  string
}

func (s *stubDetector) Detect(_ context.Context, path string) (pipeline.Result, error) {
	s.calls++
	s.seen = path
	if _, err := os.Stat(path); err != nil {
		return pipeline.Result{}, err
	}
	return s.res, s.err
}

func (s *stubDetector) ModelID() string { return "stub@1" }

func assertNoLeftovers(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func tone(t *testing.T) []byte {
	return fixtures.ToneBytes(t, 16000, 440, 0.25)
}

func TestProcessUploadEndToEnd(t *testing.T) {
	reg, err := registry.Open(fixtures.WriteModel(t, t.TempDir()))
	require.NoError(t, err)
	m, err := reg.Resolve(context.Background(), fixtures.ModelName, "")
	require.NoError(t, err)
	b, err := extractor.New(extractor.Config{
		Command: fixtures.FixedExtractor(t, t.TempDir(), fixtures.Vector(-1)),
		Args:    []string{extractor.InputPlaceholder, extractor.OutputPlaceholder},
		Timeout: 5 * time.Second,
		TmpDir:  t.TempDir(),
	}, logger.Discard())
	require.NoError(t, err)

	tmp := t.TempDir()
	p := processor.New(pipeline.FromModel(b, m, logger.Discard()), nil, processor.Options{TmpDir: tmp}, logger.Discard())

	res, err := p.ProcessUpload(context.Background(), "CON_T_0000001.wav", bytes.NewReader(tone(t)))
	require.NoError(t, err)

	assert.Equal(t, types.LabelSpoof, res.Label)
	assert.Equal(t, "spoof", res.LabelName)
	assert.Equal(t, "Spoof Detected", res.Verdict.Title)
	assert.Equal(t, fixtures.ModelName+"@1.0.0", res.Model)
	assert.Equal(t, "wav", res.Audio.Format)
	assert.Equal(t, 16000, res.Audio.SampleRate)
	assert.InDelta(t, 0.25, res.Audio.DurationSec, 1e-9)
	assert.Len(t, res.Audio.SHA256, 64)
	assert.False(t, res.Cached)
	assertNoLeftovers(t, tmp)
}

func TestProcessUploadUsesCache(t *testing.T) {
	c, err := cache.Open(cache.Options{}, logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	d := &stubDetector{res: pipeline.Result{Label: types.LabelBonaFide, Probabilities: []float64{0.2, 0.8}}}
	tmp := t.TempDir()
	p := processor.New(d, c, processor.Options{TmpDir: tmp}, logger.Discard())
	clip := tone(t)

	first, err := p.ProcessUpload(context.Background(), "a.wav", bytes.NewReader(clip))
	require.NoError(t, err)
	second, err := p.ProcessUpload(context.Background(), "b.wav", bytes.NewReader(clip))
	require.NoError(t, err)

	assert.Equal(t, 1, d.calls)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, types.LabelBonaFide, second.Label)
	assert.True(t, second.Verdict.Celebrate)
	assert.Equal(t, "b.wav", second.Audio.Filename)
	assertNoLeftovers(t, tmp)
}

func TestProcessUploadTimeoutWarns(t *testing.T) {
	d := &stubDetector{err: extractor.ErrExtractionTimeout}
	tmp := t.TempDir()
	p := processor.New(d, nil, processor.Options{TmpDir: tmp}, logger.Discard())

	res, err := p.ProcessUpload(context.Background(), "clip.wav", bytes.NewReader(tone(t)))

	assert.ErrorIs(t, err, extractor.ErrExtractionTimeout)
	assert.Equal(t, verdict.TimeoutWarning, res.Warning)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Verdict.Title)
	assertNoLeftovers(t, tmp)

	_, statErr := os.Stat(d.seen)
	assert.True(t, os.IsNotExist(statErr), "upload removed after detection")
}

func TestProcessUploadRejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     []byte
		max      int64
		want     error
	}{
		{"unsupported format", "clip.m4a", []byte("...."), 0, processor.ErrUnsupportedFormat},
		{"no extension", "clip", []byte("...."), 0, processor.ErrUnsupportedFormat},
		{"too large", "clip.wav", bytes.Repeat([]byte{1}, 200), 100, processor.ErrTooLarge},
		{"undecodable", "clip.wav", []byte(strings.Repeat("noise", 20)), 0, audio.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDetector{}
			tmp := t.TempDir()
			p := processor.New(d, nil, processor.Options{TmpDir: tmp, MaxUploadBytes: tt.max}, logger.Discard())

			_, err := p.ProcessUpload(context.Background(), tt.filename, bytes.NewReader(tt.body))

			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, d.calls)
			assertNoLeftovers(t, tmp)
		})
	}
}

func TestProcessUploadRejectsLongClip(t *testing.T) {
	d := &stubDetector{}
	tmp := t.TempDir()
	p := processor.New(d, nil, processor.Options{TmpDir: tmp, MaxAudioDuration: 100 * time.Millisecond}, logger.Discard())

	_, err := p.ProcessUpload(context.Background(), "long.wav", bytes.NewReader(tone(t)))

	assert.ErrorIs(t, err, processor.ErrTooLarge)
	assert.ErrorIs(t, err, audio.ErrTooLong)
	assert.Zero(t, d.calls)
	assertNoLeftovers(t, tmp)

	_, _, err = p.DecodeUpload("long.wav", bytes.NewReader(tone(t)))
	assert.ErrorIs(t, err, processor.ErrTooLarge)
	assertNoLeftovers(t, tmp)
}

func TestDecodeUpload(t *testing.T) {
	tmp := t.TempDir()
	p := processor.New(&stubDetector{}, nil, processor.Options{TmpDir: tmp}, logger.Discard())

	clip, sample, err := p.DecodeUpload("tone.WAV", bytes.NewReader(tone(t)))
	require.NoError(t, err)

	assert.Equal(t, 4000, len(clip.Samples))
	assert.Equal(t, "wav", sample.Format)
	assertNoLeftovers(t, tmp)
}
