package audio

import "math"

const DefaultWaveformPoints = 1000

// Envelope is a plot-ready waveform: each bucket keeps the extremes of the
// samples it covers, so peaks survive downsampling.
type Envelope struct {
	SampleRate  int       `json:"sample_rate"`
	DurationSec float64   `json:"duration_sec"`
	Times       []float64 `json:"times"`
	Min         []float64 `json:"min"`
	Max         []float64 `json:"max"`
}

// Waveform buckets samples into at most points min/max pairs.
func Waveform(samples []float64, sampleRate, points int) Envelope {
	if points <= 0 {
		points = DefaultWaveformPoints
	}
	env := Envelope{SampleRate: sampleRate}
	if len(samples) == 0 || sampleRate <= 0 {
		return env
	}
	env.DurationSec = float64(len(samples)) / float64(sampleRate)

	per := int(math.Ceil(float64(len(samples)) / float64(points)))
	for start := 0; start < len(samples); start += per {
		end := min(start+per, len(samples))
		lo, hi := samples[start], samples[start]
		for _, s := range samples[start+1 : end] {
			lo = math.Min(lo, s)
			hi = math.Max(hi, s)
		}
		env.Times = append(env.Times, float64(start)/float64(sampleRate))
		env.Min = append(env.Min, lo)
		env.Max = append(env.Max, hi)
	}
	return env
}
