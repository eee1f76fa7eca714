// Package service assembles the detection stack from configuration. Both the
// HTTP server and the CLI start here.
package service

import (
	"context"
	"fmt"

	"spad-go/internal/cache"
	"spad-go/internal/config"
	"spad-go/internal/extractor"
	"spad-go/internal/logger"
	"spad-go/internal/pipeline"
	"spad-go/internal/processor"
	"spad-go/internal/registry"
)

type Service struct {
	Registry  *registry.Registry
	Model     *registry.Model
	Pipeline  *pipeline.Pipeline
	Processor *processor.Processor
	Cache     *cache.Cache // nil when disabled
}

// Build resolves the configured model, verifies it and wires the pipeline.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*Service, error) {
	reg, err := registry.Open(cfg.ModelManifest)
	if err != nil {
		return nil, err
	}
	model, err := reg.Resolve(ctx, cfg.ModelName, cfg.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}
	log.WithField("model", model.ID()).Info("model loaded")

	bridge, err := extractor.New(extractor.Config{
		Command:       cfg.ExtractorCommand,
		Args:          cfg.ExtractorArgs,
		Timeout:       cfg.ExtractorTimeout,
		OutputExt:     cfg.ExtractorOutputExt,
		Variable:      cfg.ExtractorVariable,
		MaxConcurrent: cfg.ExtractorMaxConcurrent,
		TmpDir:        cfg.TmpDir,
	}, log)
	if err != nil {
		return nil, err
	}

	svc := &Service{Registry: reg, Model: model}
	var rc processor.ResultCache
	if !cfg.CacheDisabled {
		svc.Cache, err = cache.Open(cache.Options{Dir: cfg.CacheDir}, log)
		if err != nil {
			return nil, err
		}
		rc = svc.Cache
	}

	svc.Pipeline = pipeline.FromModel(bridge, model, log)
	svc.Processor = processor.New(svc.Pipeline, rc, processor.Options{
		TmpDir:           cfg.TmpDir,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		MaxAudioDuration: cfg.MaxAudioDuration,
	}, log)
	return svc, nil
}

func (s *Service) Close() error {
	if s.Cache != nil {
		return s.Cache.Close()
	}
	return nil
}
