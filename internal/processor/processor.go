// Package processor handles one uploaded clip end to end: persist, decode,
// detect, render the verdict, clean up.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"spad-go/internal/audio"
	"spad-go/internal/cache"
	"spad-go/internal/extractor"
	"spad-go/internal/logger"
	"spad-go/internal/metrics"
	"spad-go/internal/pipeline"
	"spad-go/internal/types"
	"spad-go/internal/verdict"
)

const (
	DefaultMaxUploadBytes   = 25 << 20
	DefaultMaxAudioDuration = 5 * time.Minute
)

var (
	ErrUnsupportedFormat = errors.New("processor: unsupported audio format")
	ErrTooLarge          = errors.New("processor: upload too large")
)

type Detector interface {
	Detect(ctx context.Context, audioPath string) (pipeline.Result, error)
	ModelID() string
}

// ResultCache is satisfied by *cache.Cache.
type ResultCache interface {
	Get(ctx context.Context, key string) (types.DetectionResult, bool, error)
	Set(ctx context.Context, key string, res types.DetectionResult) error
}

type Options struct {
	TmpDir         string
	MaxUploadBytes int64
	// MaxAudioDuration caps the decoded clip; compressed uploads can expand
	// far beyond MaxUploadBytes.
	MaxAudioDuration time.Duration
}

type Processor struct {
	detector Detector
	cache    ResultCache // nil disables caching
	opts     Options
	log      *logrus.Entry
}

func New(d Detector, c ResultCache, opts Options, log *logger.Logger) *Processor {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxAudioDuration <= 0 {
		opts.MaxAudioDuration = DefaultMaxAudioDuration
	}
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}
	if log == nil {
		log = logger.New()
	}
	return &Processor{detector: d, cache: c, opts: opts, log: log.WithComponent("processor")}
}

// ProcessUpload runs detection on one upload. On failure the returned result
// still carries what was learned (audio info, error text, timeout warning).
func (p *Processor) ProcessUpload(ctx context.Context, filename string, r io.Reader) (types.DetectionResult, error) {
	start := time.Now()
	res := types.DetectionResult{Model: p.detector.ModelID()}
	done := func(err error) (types.DetectionResult, error) {
		res.DurationMs = time.Since(start).Milliseconds()
		if err != nil {
			res.Error = err.Error()
		}
		return res, err
	}

	up, err := p.stage(filename, r)
	if err != nil {
		return done(err)
	}
	defer up.cleanup()
	res.Audio = up.sample

	log := p.log.WithFields(logrus.Fields{"file": up.sample.Filename, "sha256": up.sample.SHA256})
	key := cache.Key(res.Model, up.sample.SHA256)
	if p.cache != nil {
		hit, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			log.WithError(err).Warn("cache lookup failed")
		}
		if ok {
			hit.Audio = up.sample
			hit.Cached = true
			hit.Error, hit.Warning = "", ""
			res = hit
			metrics.Detections.WithLabelValues(res.Label.String(), "true").Inc()
			log.WithField("label", res.Label.String()).Info("served from cache")
			return done(nil)
		}
	}

	out, err := p.detector.Detect(ctx, up.sample.Path)
	res.Timings = out.Timings
	if err != nil {
		if errors.Is(err, extractor.ErrExtractionTimeout) {
			res.Warning = verdict.TimeoutWarning
		}
		log.WithError(err).Warn("detection failed")
		return done(err)
	}

	res.Label = out.Label
	res.LabelName = out.Label.String()
	res.Probabilities = out.Probabilities
	res.Verdict = verdict.For(out.Label)
	metrics.Detections.WithLabelValues(res.Label.String(), "false").Inc()

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, res); err != nil {
			log.WithError(err).Warn("cache store failed")
		}
	}
	log.WithFields(logrus.Fields{"label": res.LabelName, "extract_ms": res.Timings.ExtractMs}).Info("detection complete")
	return done(nil)
}

// DecodeUpload persists and decodes an upload for plotting. Nothing is left on disk.
func (p *Processor) DecodeUpload(filename string, r io.Reader) (*audio.Clip, types.AudioSample, error) {
	up, err := p.stage(filename, r)
	if err != nil {
		return nil, types.AudioSample{}, err
	}
	defer up.cleanup()
	return up.clip, up.sample, nil
}

type upload struct {
	dir     string
	sample  types.AudioSample
	clip    *audio.Clip
	cleanup func()
}

// stage writes r to <tmp>/spad-<uuid>/upload.<ext> and decodes it. The caller
// must call cleanup; on error stage has already cleaned up.
func (p *Processor) stage(filename string, r io.Reader) (*upload, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !audio.Supported(ext) {
		return nil, fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFormat, ext, strings.Join(audio.Formats, ", "))
	}

	dir := filepath.Join(p.opts.TmpDir, "spad-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("processor: temp dir: %w", err)
	}
	up := &upload{dir: dir}
	up.cleanup = func() {
		if err := os.RemoveAll(dir); err != nil {
			p.log.WithField("dir", dir).WithError(err).Warn("cleanup failed")
		}
	}

	path := filepath.Join(dir, "upload."+ext)
	size, digest, err := p.persist(path, r)
	if err != nil {
		up.cleanup()
		return nil, err
	}
	clip, err := audio.Decode(path, p.opts.MaxAudioDuration)
	if errors.Is(err, audio.ErrTooLong) {
		err = fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	if err != nil {
		up.cleanup()
		return nil, err
	}

	up.clip = clip
	up.sample = types.AudioSample{
		Path:        path,
		Filename:    filepath.Base(filename),
		Format:      ext,
		SizeBytes:   size,
		SHA256:      digest,
		SampleRate:  clip.SampleRate,
		Channels:    clip.Channels,
		DurationSec: clip.Duration(),
	}
	return up, nil
}

func (p *Processor) persist(path string, r io.Reader) (int64, string, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return 0, "", fmt.Errorf("processor: create upload: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(r, p.opts.MaxUploadBytes+1))
	if err != nil {
		return 0, "", fmt.Errorf("processor: write upload: %w", err)
	}
	if n > p.opts.MaxUploadBytes {
		return 0, "", fmt.Errorf("%w: limit is %s bytes", ErrTooLarge, strconv.FormatInt(p.opts.MaxUploadBytes, 10))
	}
	if err := f.Close(); err != nil {
		return 0, "", fmt.Errorf("processor: close upload: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
