package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spad-go/internal/types"
)

func TestNamesLayout(t *testing.T) {
	names := Names()
	require.Len(t, names, 81)
	assert.Equal(t, 81, Count)

	assert.Equal(t, "LogEnergy", names[0])
	assert.Equal(t, "GTCC12", names[13])
	assert.Equal(t, "LogEnergy_delta", names[14])
	assert.Equal(t, "LogEnergy_delta-delta", names[28])
	assert.Equal(t, "GTCC12_delta-delta", names[41])
	assert.Equal(t, "MFCC0", names[42])
	assert.Equal(t, "MFCC0_delta", names[55])
	assert.Equal(t, "MFCC12_delta-delta", names[80])
}

func TestValidate(t *testing.T) {
	v := make(types.FeatureVector, Count)
	assert.NoError(t, Validate(v))

	assert.Error(t, Validate(v[:80]))

	v[3] = math.NaN()
	err := Validate(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GTCC2")
}

func TestNamed(t *testing.T) {
	v := make(types.FeatureVector, Count)
	v[42] = 1.5
	assert.Equal(t, 1.5, Named(v)["MFCC0"])
}
