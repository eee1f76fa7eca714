package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassLabelString(t *testing.T) {
	assert.Equal(t, "spoof", LabelSpoof.String())
	assert.Equal(t, "bona fide", LabelBonaFide.String())
	assert.Equal(t, "unknown(7)", ClassLabel(7).String())
	assert.False(t, ClassLabel(-1).Valid())
	assert.True(t, LabelBonaFide.Valid())
}
