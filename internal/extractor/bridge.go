// Package extractor runs the external feature extraction tool and reads back the
// feature vector it writes.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"spad-go/internal/logger"
	"spad-go/internal/metrics"
	"spad-go/internal/types"
)

var (
	// ErrExtractionTimeout: the tool did not produce output before the timeout.
	ErrExtractionTimeout = errors.New("extractor: timed out waiting for features")
	// ErrMalformedOutput: the output exists but is not the expected matrix.
	ErrMalformedOutput = errors.New("extractor: malformed output")
	// ErrExtractorFailed: the tool could not start or exited non-zero.
	ErrExtractorFailed = errors.New("extractor: tool failed")
)

const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"

	stderrTail = 2048
)

type Config struct {
	Command       string
	Args          []string      // may contain {input} and {output}
	Timeout       time.Duration // whole call: slot wait, run and output wait
	OutputExt     string        // .json or .csv
	Variable      string        // matrix name inside the output
	MaxConcurrent int
	TmpDir        string

	// PollInterval caps the backoff between output checks once the tool has exited.
	PollInterval time.Duration
}

// Bridge owns one external tool configuration. It is safe for concurrent use:
// each call gets its own output directory.
type Bridge struct {
	cfg Config
	sem *semaphore.Weighted
	log *logrus.Entry
}

func New(cfg Config, log *logger.Logger) (*Bridge, error) {
	if cfg.Command == "" {
		return nil, errors.New("extractor: command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.OutputExt == "" {
		cfg.OutputExt = ".json"
	}
	if !strings.HasPrefix(cfg.OutputExt, ".") {
		cfg.OutputExt = "." + cfg.OutputExt
	}
	if !supportedOutputs[strings.ToLower(cfg.OutputExt)] {
		return nil, fmt.Errorf("extractor: unsupported output extension %q", cfg.OutputExt)
	}
	if cfg.Variable == "" {
		cfg.Variable = "hybridFeatures"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	if log == nil {
		log = logger.New()
	}
	return &Bridge{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log: log.WithComponent("extractor"),
	}, nil
}

// Extract runs the tool on inputPath and returns the feature vector.
// The intermediate output is removed before Extract returns, whatever the outcome.
func (b *Bridge) Extract(ctx context.Context, inputPath string) (types.FeatureVector, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("extractor: input: %w", err)
	}

	// the timeout also bounds the wait for a slot
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.ExtractionFailures.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: waiting for a slot after %s", ErrExtractionTimeout, b.cfg.Timeout)
		}
		return nil, fmt.Errorf("extractor: waiting for a slot: %w", err)
	}
	defer b.sem.Release(1)

	workDir, err := os.MkdirTemp(b.cfg.TmpDir, "spad-extract-"+uuid.NewString()+"-")
	if err != nil {
		return nil, fmt.Errorf("extractor: workdir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			b.log.WithField("workdir", workDir).WithError(err).Warn("cleanup failed")
		}
	}()
	outputPath := filepath.Join(workDir, "features"+b.cfg.OutputExt)

	log := b.log.WithFields(logrus.Fields{"input": inputPath, "output": outputPath})

	metrics.ExtractionsInFlight.Inc()
	start := time.Now()
	var vec types.FeatureVector
	err = b.run(ctx, inputPath, outputPath)
	if err == nil {
		vec, err = b.waitForOutput(ctx, outputPath)
	}
	metrics.ExtractionsInFlight.Dec()
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExtractionFailures.WithLabelValues(reason(err)).Inc()
		if errors.Is(err, ErrMalformedOutput) {
			log.WithError(err).Error("unreadable extractor output")
		} else {
			log.WithError(err).Warn("feature extraction failed")
		}
		return nil, err
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("features extracted")
	return vec, nil
}

// run starts the tool and waits for it to exit.
func (b *Bridge) run(ctx context.Context, inputPath, outputPath string) error {
	args := make([]string, len(b.cfg.Args))
	for i, a := range b.cfg.Args {
		a = strings.ReplaceAll(a, InputPlaceholder, inputPath)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, outputPath)
	}

	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	switch {
	case err == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrExtractionTimeout, b.cfg.Timeout)
	case ctx.Err() != nil:
		return fmt.Errorf("extractor: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: exit status %d: %s", ErrExtractorFailed, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	return fmt.Errorf("%w: %v", ErrExtractorFailed, err)
}

// waitForOutput covers launchers that return before the work is done: keep
// polling until the output exists and parses, or the deadline passes. A file
// that is still being written fails to parse and is read again on the next
// poll; if it never becomes valid the last parse error is returned.
func (b *Bridge) waitForOutput(ctx context.Context, outputPath string) (types.FeatureVector, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = b.cfg.PollInterval
	bo.MaxElapsedTime = 0 // bounded by ctx

	var (
		vec       types.FeatureVector
		malformed error
	)
	op := func() error {
		info, err := os.Stat(outputPath)
		if err != nil {
			if os.IsNotExist(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if info.Size() == 0 {
			return errors.New("output still empty")
		}
		vec, err = readVector(outputPath, b.cfg.Variable)
		if err != nil {
			malformed = err
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if malformed != nil {
				return nil, malformed
			}
			return nil, fmt.Errorf("%w: no output after %s", ErrExtractionTimeout, b.cfg.Timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extractor: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractorFailed, err)
	}
	return vec, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrExtractionTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ErrExtractorFailed):
		return "exit"
	default:
		return "canceled"
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
