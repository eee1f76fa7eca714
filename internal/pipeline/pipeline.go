// Package pipeline wires extraction, normalization and classification for one clip.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"spad-go/internal/classifier"
	"spad-go/internal/logger"
	"spad-go/internal/registry"
	"spad-go/internal/types"
)

type Extractor interface {
	Extract(ctx context.Context, audioPath string) (types.FeatureVector, error)
}

type Normalizer interface {
	Transform(x []float64) ([]float64, error)
}

// Result is the outcome of one run.
type Result struct {
	Model         string
	Label         types.ClassLabel
	Probabilities []float64
	Timings       types.StageTimings
}

type Pipeline struct {
	extractor  Extractor
	normalizer Normalizer
	classifier classifier.Classifier
	modelID    string
	log        *logrus.Entry
}

func New(ex Extractor, norm Normalizer, clf classifier.Classifier, modelID string, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.New()
	}
	return &Pipeline{
		extractor:  ex,
		normalizer: norm,
		classifier: clf,
		modelID:    modelID,
		log:        log.WithComponent("pipeline").WithField("model", modelID),
	}
}

// FromModel builds a pipeline around a resolved registry model.
func FromModel(ex Extractor, m *registry.Model, log *logger.Logger) *Pipeline {
	return New(ex, m.Scaler, m.Classifier, m.ID(), log)
}

func (p *Pipeline) ModelID() string { return p.modelID }

// Detect runs the three stages in order. A failed stage stops the run; later
// stages are not called.
func (p *Pipeline) Detect(ctx context.Context, audioPath string) (Result, error) {
	res := Result{Model: p.modelID}

	start := time.Now()
	raw, err := p.extractor.Extract(ctx, audioPath)
	res.Timings.ExtractMs = time.Since(start).Milliseconds()
	if err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}

	start = time.Now()
	z, err := p.normalizer.Transform(raw)
	res.Timings.NormalizeMs = time.Since(start).Milliseconds()
	if err != nil {
		return res, fmt.Errorf("normalize: %w", err)
	}

	start = time.Now()
	proba, err := p.classifier.PredictProba(z)
	if err == nil {
		res.Label, err = p.classifier.Predict(z)
	}
	res.Timings.ClassifyMs = time.Since(start).Milliseconds()
	if err != nil {
		return res, fmt.Errorf("classify: %w", err)
	}
	res.Probabilities = proba

	p.log.WithFields(logrus.Fields{
		"label":       res.Label.String(),
		"extract_ms":  res.Timings.ExtractMs,
		"classify_ms": res.Timings.ClassifyMs,
	}).Debug("detection complete")
	return res, nil
}
