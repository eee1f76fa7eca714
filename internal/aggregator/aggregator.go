package aggregator

import (
	"fmt"
	"sync"

	"spad-go/internal/types"
)

// Distribution is the class balance of a set of labeled rows or detections.
type Distribution struct {
	Total  int                `json:"total"`
	Counts map[string]int     `json:"counts"`
	Share  map[string]float64 `json:"share"`
}

// LabelKey is the display key used in distributions, e.g. "Spoof (0)".
func LabelKey(l types.ClassLabel) string {
	switch l {
	case types.LabelSpoof:
		return "Spoof (0)"
	case types.LabelBonaFide:
		return "Bona fide (1)"
	default:
		return fmt.Sprintf("Unknown (%d)", int(l))
	}
}

func Aggregate(rows []types.LabeledRow) Distribution {
	counts := map[types.ClassLabel]int{}
	for _, r := range rows {
		counts[r.Label]++
	}
	return distribution(counts)
}

func distribution(counts map[types.ClassLabel]int) Distribution {
	d := Distribution{Counts: map[string]int{}, Share: map[string]float64{}}
	// both known classes always appear, even at zero
	for _, l := range []types.ClassLabel{types.LabelSpoof, types.LabelBonaFide} {
		d.Counts[LabelKey(l)] = 0
	}
	for l, n := range counts {
		d.Counts[LabelKey(l)] = n
		d.Total += n
	}
	for k, n := range d.Counts {
		if d.Total > 0 {
			d.Share[k] = float64(n) / float64(d.Total)
		} else {
			d.Share[k] = 0
		}
	}
	return d
}

// Stats is what /stats reports.
type Stats struct {
	Labels   Distribution   `json:"labels"`
	Cached   int            `json:"cached"`
	Failures map[string]int `json:"failures"`
}

// Tally counts detection outcomes since process start. Safe for concurrent use.
type Tally struct {
	mu       sync.Mutex
	labels   map[types.ClassLabel]int
	cached   int
	failures map[string]int
}

func NewTally() *Tally {
	return &Tally{labels: map[types.ClassLabel]int{}, failures: map[string]int{}}
}

func (t *Tally) Record(res types.DetectionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labels[res.Label]++
	if res.Cached {
		t.cached++
	}
}

// RecordFailure counts a detection that ended without a label.
func (t *Tally) RecordFailure(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[reason]++
}

func (t *Tally) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	labels := make(map[types.ClassLabel]int, len(t.labels))
	for k, v := range t.labels {
		labels[k] = v
	}
	failures := make(map[string]int, len(t.failures))
	for k, v := range t.failures {
		failures[k] = v
	}
	return Stats{Labels: distribution(labels), Cached: t.cached, Failures: failures}
}
