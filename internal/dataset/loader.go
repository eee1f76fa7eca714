package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"spad-go/internal/features"
	"spad-go/internal/types"
)

var ErrBadRow = errors.New("dataset: bad row")

// Load reads a feature table: features.Count numeric columns followed by the
// integer label, no header. .csv and .xlsx (first sheet) are accepted.
func Load(path string) ([]types.LabeledRow, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("dataset: unsupported table %s", filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}

	out := make([]types.LabeledRow, 0, len(records))
	for i, rec := range records {
		if isBlank(rec) {
			continue
		}
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), i+1, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func parseRow(rec []string) (types.LabeledRow, error) {
	if len(rec) != features.Count+1 {
		return types.LabeledRow{}, fmt.Errorf("%w: %d columns, want %d features + label", ErrBadRow, len(rec), features.Count)
	}
	vec := make(types.FeatureVector, features.Count)
	for i := range vec {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return types.LabeledRow{}, fmt.Errorf("%w: column %s: %q", ErrBadRow, features.Names()[i], rec[i])
		}
		vec[i] = v
	}
	// labels sometimes come back as 1.0 from spreadsheet exports
	lv, err := strconv.ParseFloat(strings.TrimSpace(rec[features.Count]), 64)
	if err != nil || lv != math.Trunc(lv) || !types.ClassLabel(lv).Valid() {
		return types.LabeledRow{}, fmt.Errorf("%w: label %q", ErrBadRow, rec[features.Count])
	}
	return types.LabeledRow{Features: vec, Label: types.ClassLabel(lv)}, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
