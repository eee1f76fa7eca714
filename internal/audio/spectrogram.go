package audio

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Defaults follow the STFT settings the dataset plots were made with.
const (
	DefaultFrameSize = 2048
	DefaultHopSize   = 512
	DefaultTopDB     = 80.0
	DefaultMels      = 128
)

var ErrTooShort = errors.New("audio: clip shorter than one analysis frame")

type SpectrogramConfig struct {
	FrameSize int
	HopSize   int
	// TopDB floors every cell at max-TopDB.
	TopDB float64
	// Mels is only read by MelSpectrogram.
	Mels int
}

func (c SpectrogramConfig) withDefaults() SpectrogramConfig {
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.HopSize <= 0 {
		c.HopSize = DefaultHopSize
	}
	if c.TopDB <= 0 {
		c.TopDB = DefaultTopDB
	}
	if c.Mels <= 0 {
		c.Mels = DefaultMels
	}
	return c
}

// Spectrogram holds frames x bins of decibels referenced to the loudest cell (0 dB).
type Spectrogram struct {
	Kind        string      `json:"kind"`
	SampleRate  int         `json:"sample_rate"`
	Times       []float64   `json:"times"`
	Frequencies []float64   `json:"frequencies"`
	DB          [][]float64 `json:"db"`
}

// LinearSpectrogram is the Hann-windowed STFT magnitude in dB.
func LinearSpectrogram(samples []float64, sampleRate int, cfg SpectrogramConfig) (*Spectrogram, error) {
	cfg = cfg.withDefaults()
	power, times, err := stftPower(samples, sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	bins := cfg.FrameSize/2 + 1
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(cfg.FrameSize)
	}
	return &Spectrogram{
		Kind:        "linear",
		SampleRate:  sampleRate,
		Times:       times,
		Frequencies: freqs,
		DB:          toDB(power, cfg.TopDB),
	}, nil
}

// MelSpectrogram projects STFT power onto cfg.Mels Slaney-normalized mel bands,
// the librosa defaults. Frequencies are the band centres.
func MelSpectrogram(samples []float64, sampleRate int, cfg SpectrogramConfig) (*Spectrogram, error) {
	cfg = cfg.withDefaults()
	power, times, err := stftPower(samples, sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	bank, centres := melFilterBank(cfg.Mels, cfg.FrameSize, sampleRate)

	mel := make([][]float64, len(power))
	for t, frame := range power {
		row := make([]float64, cfg.Mels)
		for m, filter := range bank {
			var sum float64
			for k, w := range filter {
				sum += w * frame[k]
			}
			row[m] = sum
		}
		mel[t] = row
	}
	return &Spectrogram{
		Kind:        "mel",
		SampleRate:  sampleRate,
		Times:       times,
		Frequencies: centres,
		DB:          toDB(mel, cfg.TopDB),
	}, nil
}

func stftPower(samples []float64, sampleRate int, cfg SpectrogramConfig) ([][]float64, []float64, error) {
	if sampleRate <= 0 || len(samples) < cfg.FrameSize {
		return nil, nil, ErrTooShort
	}
	hann := window.Hann(cfg.FrameSize)
	bins := cfg.FrameSize/2 + 1

	var power [][]float64
	var times []float64
	frame := make([]float64, cfg.FrameSize)
	for start := 0; start+cfg.FrameSize <= len(samples); start += cfg.HopSize {
		for i := range frame {
			frame[i] = samples[start+i] * hann[i]
		}
		spectrum := fft.FFTReal(frame)
		row := make([]float64, bins)
		for k := range row {
			m := cmplx.Abs(spectrum[k])
			row[k] = m * m
		}
		power = append(power, row)
		times = append(times, float64(start+cfg.FrameSize/2)/float64(sampleRate))
	}
	return power, times, nil
}

// toDB converts power to 10*log10(p/max), floored at -topDB.
func toDB(power [][]float64, topDB float64) [][]float64 {
	const amin = 1e-10
	ref := amin
	for _, row := range power {
		for _, p := range row {
			ref = math.Max(ref, p)
		}
	}
	out := make([][]float64, len(power))
	for t, row := range power {
		db := make([]float64, len(row))
		for k, p := range row {
			db[k] = math.Max(10*math.Log10(math.Max(p, amin)/ref), -topDB)
		}
		out[t] = db
	}
	return out
}

// Slaney's mel scale: linear below 1 kHz, logarithmic above.
const (
	melLinearHz = 200.0 / 3
	melBreakHz  = 1000.0
	melBreak    = melBreakHz / melLinearHz
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(hz float64) float64 {
	if hz < melBreakHz {
		return hz / melLinearHz
	}
	return melBreak + math.Log(hz/melBreakHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melBreak {
		return mel * melLinearHz
	}
	return melBreakHz * math.Exp(melLogStep*(mel-melBreak))
}

// melFilterBank returns nMels triangular filters over the FFT bins of one frame
// and each filter's centre frequency. Each filter has unit area in Hz.
func melFilterBank(nMels, frameSize, sampleRate int) ([][]float64, []float64) {
	bins := frameSize/2 + 1
	binHz := float64(sampleRate) / float64(frameSize)

	lo, hi := hzToMel(0), hzToMel(float64(sampleRate)/2)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	bank := make([][]float64, nMels)
	centres := make([]float64, nMels)
	for m := 0; m < nMels; m++ {
		left, centre, right := edges[m], edges[m+1], edges[m+2]
		centres[m] = centre
		norm := 2 / (right - left)
		filter := make([]float64, bins)
		for k := range filter {
			f := float64(k) * binHz
			switch {
			case f > left && f <= centre:
				filter[k] = norm * (f - left) / (centre - left)
			case f > centre && f < right:
				filter[k] = norm * (right - f) / (right - centre)
			}
		}
		bank[m] = filter
	}
	return bank, centres
}
