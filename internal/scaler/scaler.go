// Package scaler applies a standardization fitted offline on the training corpus.
package scaler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrDimensionMismatch = errors.New("scaler: dimension mismatch")

// Scaler holds per-feature mean and scale. A zero scale means the feature had no
// variance during fitting and is left unscaled.
type Scaler struct {
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

// New validates mean/scale and returns a Scaler.
func New(mean, scale []float64) (*Scaler, error) {
	s := &Scaler{Mean: mean, Scale: scale}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a JSON export of a fitted scaler.
func Load(path string) (*Scaler, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scaler: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Scaler, error) {
	var s Scaler
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scaler) validate() error {
	if len(s.Mean) == 0 {
		return errors.New("scaler: empty mean")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("%w: mean has %d values, scale has %d", ErrDimensionMismatch, len(s.Mean), len(s.Scale))
	}
	if len(s.FeatureNames) > 0 && len(s.FeatureNames) != len(s.Mean) {
		return fmt.Errorf("%w: %d feature names for %d values", ErrDimensionMismatch, len(s.FeatureNames), len(s.Mean))
	}
	return nil
}

// Dim is the number of features the scaler was fitted on.
func (s *Scaler) Dim() int { return len(s.Mean) }

// Transform returns (x[i]-mean[i])/scale[i]. x is not modified.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.scale(i)
	}
	return out, nil
}

// Inverse undoes Transform.
func (s *Scaler) Inverse(z []float64) ([]float64, error) {
	if len(z) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(z), len(s.Mean))
	}
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = v*s.scale(i) + s.Mean[i]
	}
	return out, nil
}

func (s *Scaler) scale(i int) float64 {
	if s.Scale[i] == 0 {
		return 1
	}
	return s.Scale[i]
}
