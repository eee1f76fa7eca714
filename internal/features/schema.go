// Package features describes the layout of the extractor's feature vector:
// log energy and 13 gammatone cepstral coefficients with their first and second
// differences, followed by 13 mel cepstral coefficients with theirs.
package features

import (
	"fmt"
	"math"

	"spad-go/internal/types"
)

const numCoefficients = 13

// Count is the length of every feature vector the models accept.
var Count = len(Names())

// Names returns the column names in extractor order.
func Names() []string {
	names := make([]string, 0, 3*(numCoefficients+1)+3*numCoefficients)
	for _, suffix := range []string{"", "_delta", "_delta-delta"} {
		names = append(names, "LogEnergy"+suffix)
		for i := 0; i < numCoefficients; i++ {
			names = append(names, fmt.Sprintf("GTCC%d%s", i, suffix))
		}
	}
	for _, suffix := range []string{"", "_delta", "_delta-delta"} {
		for i := 0; i < numCoefficients; i++ {
			names = append(names, fmt.Sprintf("MFCC%d%s", i, suffix))
		}
	}
	return names
}

// Validate checks length and rejects NaN/Inf, which the scaler would propagate.
func Validate(v types.FeatureVector) error {
	if len(v) != Count {
		return fmt.Errorf("feature vector has %d values, want %d", len(v), Count)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("feature %s (index %d) is not finite", Names()[i], i)
		}
	}
	return nil
}

// Named pairs each value with its column name.
func Named(v types.FeatureVector) map[string]float64 {
	names := Names()
	out := make(map[string]float64, len(v))
	for i, x := range v {
		if i < len(names) {
			out[names[i]] = x
		}
	}
	return out
}
