// Package classifier evaluates the pre-trained detection model.
package classifier

import (
	"errors"
	"fmt"

	"spad-go/internal/types"
)

var (
	ErrInvalidModel     = errors.New("classifier: invalid model")
	ErrFeatureMismatch  = errors.New("classifier: feature count mismatch")
	ErrUnknownAlgorithm = errors.New("classifier: unknown algorithm")
)

// Classifier maps a normalized feature vector to a class label.
type Classifier interface {
	Predict(x []float64) (types.ClassLabel, error)
	PredictProba(x []float64) ([]float64, error)
	NumFeatures() int
	Algorithm() string
}

// Load opens a serialized model of the given algorithm.
func Load(algorithm, path string) (Classifier, error) {
	switch algorithm {
	case AlgorithmRandomForest:
		return LoadForest(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Supported reports whether Load can open models of this algorithm.
func Supported(algorithm string) bool {
	return algorithm == AlgorithmRandomForest
}
