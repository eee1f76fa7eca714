package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"spad-go/internal/audio"
	"spad-go/internal/dataset"
	"spad-go/internal/logger"
	"spad-go/internal/registry"
	"spad-go/internal/verdict"
)

const aboutText = "This project explores the use of machine learning in detecting both fully and partially spoofed audio. " +
	"Check if the audio is bona fide or spoofed with SpAD!"

// The two home page clips. Both are partially spoofed.
var samples = []sample{
	{ID: "1", File: "CON_T_0000001.wav"},
	{ID: "2", File: "CON_T_0000002.wav"},
}

type sample struct {
	ID   string `json:"id"`
	File string `json:"file"`
	URL  string `json:"url"`
}

var errNoFile = errors.New(`multipart field "file" is required`)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log.WithRequest(r), http.StatusOK, map[string]any{
		"service": "Spoof Audio Detection (SpAD)",
		"about":   aboutText,
		"model":   s.deps.ModelID,
		"formats": audio.Formats,
		"pages": map[string]string{
			"detect":          "POST /detect",
			"samples":         "GET /samples",
			"waveform":        "POST /waveform",
			"spectrogram":     "POST /spectrogram",
			"about_model":     "GET /models",
			"about_dataset":   "GET /dataset/summary",
			"dataset_preview": "GET /dataset/preview",
		},
	})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	out := make([]sample, len(samples))
	for i, smp := range samples {
		smp.URL = "/samples/" + smp.ID
		out[i] = smp
	}
	writeJSON(w, s.log.WithRequest(r), http.StatusOK, map[string]any{
		"samples":  out,
		"question": "Can you guess which one is a partially spoofed audio?",
	})
}

func (s *Server) handleSampleAudio(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r)
	id := r.PathValue("id")
	for _, smp := range samples {
		if smp.ID != id {
			continue
		}
		f, err := os.Open(filepath.Join(s.deps.SamplesDir, smp.File))
		if err != nil {
			reqLog.WithError(err).Error("sample missing")
			writeError(w, reqLog, http.StatusNotFound, "sample audio not available")
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeContent(w, r, smp.File, time.Time{}, f)
		return
	}
	writeError(w, reqLog, http.StatusNotFound, fmt.Sprintf("no sample %q", id))
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r)
	var body struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&body); err != nil {
		writeError(w, reqLog, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reveal, err := verdict.Reveal(body.Choice)
	if err != nil {
		writeError(w, reqLog, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, reqLog, http.StatusOK, reveal)
}

// filePart streams the "file" field without buffering the upload to disk.
func (s *Server) filePart(w http.ResponseWriter, r *http.Request) (*multipart.Part, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expected multipart/form-data: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "detect")
	part, err := s.filePart(w, r)
	if err != nil {
		reqLog.WithError(err).Warn("bad upload")
		status, _ := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, reqLog, status, err.Error())
		return
	}
	defer part.Close()

	reqLog = reqLog.WithField("file", part.FileName())
	reqLog.Info("detect request received")
	res, err := s.deps.Processor.ProcessUpload(r.Context(), part.FileName(), part)
	res.RequestID = r.Header.Get(logger.RequestIDHeader)
	if err != nil {
		status, reason := statusFor(err)
		s.tally.RecordFailure(reason)
		reqLog.WithError(err).WithField("status", status).Warn("detection failed")
		writeJSON(w, reqLog, status, res)
		return
	}
	s.tally.Record(res)
	reqLog.WithField("label", res.LabelName).WithField("duration_ms", res.DurationMs).Info("detect finished")
	writeJSON(w, reqLog, http.StatusOK, res)
}

func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request) (*audio.Clip, bool) {
	reqLog := s.log.WithRequest(r)
	part, err := s.filePart(w, r)
	if err == nil {
		defer part.Close()
		var clip *audio.Clip
		clip, _, err = s.deps.Processor.DecodeUpload(part.FileName(), part)
		if err == nil {
			return clip, true
		}
	}
	status, _ := statusFor(err)
	if status == http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	reqLog.WithError(err).Warn("upload rejected")
	writeError(w, reqLog, status, err.Error())
	return nil, false
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	points, err := intParam(r, "points", audio.DefaultWaveformPoints)
	if err != nil {
		writeError(w, s.log.WithRequest(r), http.StatusBadRequest, err.Error())
		return
	}
	clip, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.log.WithRequest(r), http.StatusOK, audio.Waveform(clip.Samples, clip.SampleRate, points))
}

func (s *Server) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r)
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "mel"
	}
	if kind != "mel" && kind != "linear" && kind != "chroma" {
		writeError(w, reqLog, http.StatusBadRequest, `kind must be "mel", "linear" or "chroma"`)
		return
	}
	clip, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}

	var spec any
	var err error
	switch kind {
	case "mel":
		spec, err = audio.MelSpectrogram(clip.Samples, clip.SampleRate, audio.SpectrogramConfig{})
	case "linear":
		spec, err = audio.LinearSpectrogram(clip.Samples, clip.SampleRate, audio.SpectrogramConfig{})
	default:
		spec, err = audio.Chroma(clip.Samples, clip.SampleRate, audio.SpectrogramConfig{})
	}
	if err != nil {
		status, _ := statusFor(err)
		writeError(w, reqLog, status, err.Error())
		return
	}
	writeJSON(w, reqLog, http.StatusOK, spec)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r)
	var entries []registry.Entry
	if s.deps.Registry != nil {
		entries = s.deps.Registry.List(registry.ModelStatus(r.URL.Query().Get("status")))
	}
	writeJSON(w, reqLog, http.StatusOK, map[string]any{
		"active": s.deps.ModelID,
		"models": entries,
	})
}

func (s *Server) handleDatasetSummary(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r)
	if s.deps.Dataset == nil {
		writeError(w, reqLog, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	set := r.URL.Query().Get("set")
	if set == "" {
		set = dataset.SetAll
	}
	sum, err := s.deps.Dataset.Summarize(set)
	if err != nil {
		writeError(w, reqLog, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, reqLog, http.StatusOK, sum)
}

func (s *Server) handleDatasetPreview(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r)
	if s.deps.Dataset == nil {
		writeError(w, reqLog, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	set := r.URL.Query().Get("set")
	if set == "" {
		set = dataset.SetTrain
	}
	n, err := intParam(r, "n", 20)
	if err != nil {
		writeError(w, reqLog, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.deps.Dataset.Preview(set, n)
	if err != nil {
		writeError(w, reqLog, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, reqLog, http.StatusOK, p)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log.WithRequest(r), http.StatusOK, s.tally.Snapshot())
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}
