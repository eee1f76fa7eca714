package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"spad-go/internal/aggregator"
	"spad-go/internal/features"
	"spad-go/internal/logger"
	"spad-go/internal/types"
)

// Set names accepted by Summarize and Preview.
const (
	SetAll        = "All"
	SetTrain      = "Train"
	SetValidation = "Validation"
	SetTest       = "Test"
)

var ErrUnknownSet = errors.New("dataset: unknown set")

// splitFiles maps each set to its file stem under the dataset directory.
var splitFiles = []struct{ set, stem string }{
	{SetTrain, "GTCC-MFCC_train"},
	{SetValidation, "GTCC-MFCC_val"},
	{SetTest, "GTCC-MFCC_test"},
}

// Splits holds the train/validation/test tables keyed by set name.
type Splits map[string][]types.LabeledRow

// LoadSplits reads GTCC-MFCC_{train,val,test} from dir, preferring .csv over .xlsx.
func LoadSplits(dir string, l *logger.Logger) (Splits, error) {
	if l == nil {
		l = logger.New()
	}
	log := l.WithComponent("dataset").WithField("dir", dir)
	out := Splits{}
	for _, s := range splitFiles {
		path, err := findTable(dir, s.stem)
		if err != nil {
			return nil, err
		}
		rows, err := Load(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Error("load failed")
			return nil, err
		}
		out[s.set] = rows
	}
	log.WithField("rows", len(out.rows(SetAll))).Info("dataset loaded")
	return out, nil
}

func findTable(dir, stem string) (string, error) {
	for _, ext := range []string{".csv", ".xlsx"} {
		p := filepath.Join(dir, stem+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("dataset: %s.csv or %s.xlsx not found in %s", stem, stem, dir)
}

func (s Splits) rows(set string) []types.LabeledRow {
	if set != SetAll {
		return s[set]
	}
	var all []types.LabeledRow
	for _, f := range splitFiles {
		all = append(all, s[f.set]...)
	}
	return all
}

func validSet(set string) error {
	switch set {
	case SetAll, SetTrain, SetValidation, SetTest:
		return nil
	}
	return fmt.Errorf("%w %q (want All, Train, Validation or Test)", ErrUnknownSet, set)
}

type Summary struct {
	Set          string                  `json:"set"`
	Rows         int                     `json:"rows"`
	SplitRows    map[string]int          `json:"split_rows"`
	Columns      []string                `json:"columns"`
	Distribution aggregator.Distribution `json:"distribution"`
}

// Summarize reports the class distribution of one set, or of all sets combined.
func (s Splits) Summarize(set string) (Summary, error) {
	if err := validSet(set); err != nil {
		return Summary{}, err
	}
	rows := s.rows(set)
	sizes := map[string]int{}
	for _, f := range splitFiles {
		sizes[f.set] = len(s[f.set])
	}
	return Summary{
		Set:          set,
		Rows:         len(rows),
		SplitRows:    sizes,
		Columns:      append(features.Names(), "label"),
		Distribution: aggregator.Aggregate(rows),
	}, nil
}

// PreviewTable is the first rows of a set; the last column is the label.
type PreviewTable struct {
	Set     string      `json:"set"`
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

func (s Splits) Preview(set string, n int) (PreviewTable, error) {
	if err := validSet(set); err != nil {
		return PreviewTable{}, err
	}
	rows := s.rows(set)
	if n < 0 || n > len(rows) {
		n = len(rows)
	}
	out := PreviewTable{Set: set, Columns: append(features.Names(), "label"), Rows: make([][]float64, 0, n)}
	for _, r := range rows[:n] {
		out.Rows = append(out.Rows, append(append([]float64{}, r.Features...), float64(r.Label)))
	}
	return out, nil
}
