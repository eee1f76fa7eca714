package audio

import "math"

var PitchClasses = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// lowest bin frequency folded into a pitch class (A0)
const chromaMinHz = 27.5

// Chromagram is STFT power folded onto the twelve pitch classes, each frame
// scaled so its strongest class is 1.
type Chromagram struct {
	Kind         string      `json:"kind"`
	SampleRate   int         `json:"sample_rate"`
	Times        []float64   `json:"times"`
	PitchClasses []string    `json:"pitch_classes"`
	Values       [][]float64 `json:"values"`
}

func Chroma(samples []float64, sampleRate int, cfg SpectrogramConfig) (*Chromagram, error) {
	cfg = cfg.withDefaults()
	power, times, err := stftPower(samples, sampleRate, cfg)
	if err != nil {
		return nil, err
	}

	binHz := float64(sampleRate) / float64(cfg.FrameSize)
	class := make([]int, cfg.FrameSize/2+1)
	for k := range class {
		f := float64(k) * binHz
		if f < chromaMinHz {
			class[k] = -1
			continue
		}
		midi := int(math.Round(69 + 12*math.Log2(f/440)))
		class[k] = ((midi % 12) + 12) % 12
	}

	values := make([][]float64, len(power))
	for t, frame := range power {
		row := make([]float64, len(PitchClasses))
		for k, p := range frame {
			if class[k] >= 0 {
				row[class[k]] += p
			}
		}
		peak := 0.0
		for _, v := range row {
			peak = math.Max(peak, v)
		}
		if peak > 0 {
			for c := range row {
				row[c] /= peak
			}
		}
		values[t] = row
	}
	return &Chromagram{
		Kind:         "chroma",
		SampleRate:   sampleRate,
		Times:        times,
		PitchClasses: PitchClasses,
		Values:       values,
	}, nil
}
