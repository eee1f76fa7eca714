package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"spad-go/internal/api"
	"spad-go/internal/config"
	"spad-go/internal/dataset"
	"spad-go/internal/logger"
	"spad-go/internal/service"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	log.WithField("environment", cfg.Environment).Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build detection stack")
	}
	defer svc.Close()

	// dataset pages are optional; detection works without them
	log.WithField("dataset_dir", cfg.DatasetDir).Info("loading dataset")
	splits, err := dataset.LoadSplits(cfg.DatasetDir, log)
	if err != nil {
		log.WithError(err).Warn("dataset unavailable, /dataset endpoints disabled")
		splits = nil
	}

	srvAPI := api.New(api.Deps{
		Processor:      svc.Processor,
		Registry:       svc.Registry,
		ModelID:        svc.Model.ID(),
		Dataset:        splits,
		SamplesDir:     cfg.SamplesDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     otelhttp.NewHandler(srvAPI.Handler(), "spad-api"),
		ReadTimeout: 30 * time.Second,
		// extraction may take the full extractor timeout plus decode
		WriteTimeout: cfg.ExtractorTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("server stopped")
}
