// Package api exposes detection, plots, model and dataset information over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"spad-go/internal/aggregator"
	"spad-go/internal/audio"
	"spad-go/internal/dataset"
	"spad-go/internal/extractor"
	"spad-go/internal/logger"
	"spad-go/internal/processor"
	"spad-go/internal/registry"
)

type Deps struct {
	Processor      *processor.Processor
	Registry       *registry.Registry
	ModelID        string
	Dataset        dataset.Splits // nil when no dataset is configured
	SamplesDir     string
	MaxUploadBytes int64
	Log            *logger.Logger
}

type Server struct {
	deps  Deps
	log   *logger.Logger
	tally *aggregator.Tally
}

func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.New()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = processor.DefaultMaxUploadBytes
	}
	return &Server{deps: d, log: d.Log, tally: aggregator.NewTally()}
}

// Handler returns the routed mux with request ids attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /samples", s.handleSamples)
	mux.HandleFunc("GET /samples/{id}", s.handleSampleAudio)
	mux.HandleFunc("POST /samples/guess", s.handleGuess)
	mux.HandleFunc("POST /detect", s.handleDetect)
	mux.HandleFunc("POST /waveform", s.handleWaveform)
	mux.HandleFunc("POST /spectrogram", s.handleSpectrogram)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /dataset/summary", s.handleDatasetSummary)
	mux.HandleFunc("GET /dataset/preview", s.handleDatasetPreview)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withRequestID(mux)
}

// withRequestID pins one id per request so every log line and the response agree.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logger.RequestID(r)
		r.Header.Set(logger.RequestIDHeader, id)
		w.Header().Set(logger.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, log *logrus.Entry, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Warning string `json:"warning,omitempty"`
}

func writeError(w http.ResponseWriter, log *logrus.Entry, status int, msg string) {
	writeJSON(w, log, status, errorBody{Error: msg})
}

// statusFor maps pipeline failures to HTTP status codes and a short reason
// used for stats.
func statusFor(err error) (int, string) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, processor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, processor.ErrTooLarge), errors.Is(err, audio.ErrTooLong), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, audio.ErrDecode), errors.Is(err, audio.ErrTooShort):
		return http.StatusUnprocessableEntity, "decode"
	case errors.Is(err, extractor.ErrExtractionTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, extractor.ErrMalformedOutput):
		return http.StatusInternalServerError, "malformed_output"
	case errors.Is(err, extractor.ErrExtractorFailed):
		return http.StatusBadGateway, "extractor_failed"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
