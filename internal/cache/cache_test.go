package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spad-go/internal/logger"
	"spad-go/internal/metrics"
	"spad-go/internal/types"
)

func TestInMemoryRoundTrip(t *testing.T) {
	c, err := Open(Options{}, logger.Discard())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()
	key := Key("spad-random-forest@1.0.0", "abc")

	misses := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss"))
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("miss")))

	want := types.DetectionResult{Model: "spad-random-forest@1.0.0", Label: types.LabelSpoof, LabelName: "spoof"}
	require.NoError(t, c.Set(ctx, key, want))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want.Label, got.Label)
	assert.Equal(t, want.Model, got.Model)
}

func TestKeyIsScopedToModel(t *testing.T) {
	assert.NotEqual(t, Key("a@1", "digest"), Key("a@2", "digest"))
}

func TestOnDiskPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(Options{Dir: dir, TTL: time.Hour}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", types.DetectionResult{Label: types.LabelBonaFide}))
	require.NoError(t, c.Close())

	c, err = Open(Options{Dir: dir}, logger.Discard())
	require.NoError(t, err)
	defer c.Close()
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.LabelBonaFide, got.Label)
}
