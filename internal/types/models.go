package types

import "fmt"

// ClassLabel is the binary outcome of the classifier. The numeric values match
// the encoding the model was trained with.
type ClassLabel int

const (
	LabelSpoof    ClassLabel = 0
	LabelBonaFide ClassLabel = 1
)

func (l ClassLabel) String() string {
	switch l {
	case LabelSpoof:
		return "spoof"
	case LabelBonaFide:
		return "bona fide"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Valid reports whether l is one of the two known classes.
func (l ClassLabel) Valid() bool {
	return l == LabelSpoof || l == LabelBonaFide
}

// FeatureVector is one row of extractor output, in schema order.
type FeatureVector []float64

// AudioSample is an uploaded clip persisted for the lifetime of one detection.
type AudioSample struct {
	Path        string  `json:"-"`
	Filename    string  `json:"filename"`
	Format      string  `json:"format"`
	SizeBytes   int64   `json:"size_bytes"`
	SHA256      string  `json:"sha256"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
	DurationSec float64 `json:"duration_sec"`
}

// StageTimings records how long each pipeline stage took.
type StageTimings struct {
	ExtractMs   int64 `json:"extract_ms"`
	NormalizeMs int64 `json:"normalize_ms"`
	ClassifyMs  int64 `json:"classify_ms"`
}

// Verdict is the user facing rendering of a label.
type Verdict struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	ImageURL  string `json:"image_url"`
	Celebrate bool   `json:"celebrate,omitempty"`
}

// DetectionResult is returned by /detect
type DetectionResult struct {
	RequestID     string       `json:"request_id,omitempty"`
	Audio         AudioSample  `json:"audio"`
	Model         string       `json:"model"`
	Label         ClassLabel   `json:"label"`
	LabelName     string       `json:"label_name"`
	Probabilities []float64    `json:"probabilities,omitempty"`
	Verdict       Verdict      `json:"verdict"`
	Cached        bool         `json:"cached"`
	Timings       StageTimings `json:"timings"`
	DurationMs    int64        `json:"duration_ms"`
	Error         string       `json:"error,omitempty"`
	Warning       string       `json:"warning,omitempty"`
}

// LabeledRow is one row of a training/validation/test feature table.
type LabeledRow struct {
	Features FeatureVector `json:"features"`
	Label    ClassLabel    `json:"label"`
}
