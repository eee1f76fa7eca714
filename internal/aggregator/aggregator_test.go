package aggregator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"spad-go/internal/types"
)

func TestAggregate(t *testing.T) {
	rows := []types.LabeledRow{
		{Label: types.LabelSpoof},
		{Label: types.LabelSpoof},
		{Label: types.LabelSpoof},
		{Label: types.LabelBonaFide},
	}

	d := Aggregate(rows)

	assert.Equal(t, 4, d.Total)
	assert.Equal(t, 3, d.Counts["Spoof (0)"])
	assert.Equal(t, 1, d.Counts["Bona fide (1)"])
	assert.InDelta(t, 0.75, d.Share["Spoof (0)"], 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	d := Aggregate(nil)
	assert.Zero(t, d.Total)
	assert.Equal(t, map[string]int{"Spoof (0)": 0, "Bona fide (1)": 0}, d.Counts)
	assert.Zero(t, d.Share["Bona fide (1)"])
}

func TestTallyConcurrent(t *testing.T) {
	tally := NewTally()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tally.Record(types.DetectionResult{Label: types.ClassLabel(i % 2), Cached: i < 10})
		}(i)
	}
	wg.Wait()
	tally.RecordFailure("timeout")

	s := tally.Snapshot()
	assert.Equal(t, 50, s.Labels.Total)
	assert.Equal(t, 25, s.Labels.Counts["Spoof (0)"])
	assert.Equal(t, 10, s.Cached)
	assert.Equal(t, 1, s.Failures["timeout"])
}
