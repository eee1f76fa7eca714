package extractor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"spad-go/internal/features"
	"spad-go/internal/types"
)

// supportedOutputs are the matrix encodings the bridge can read, by file extension.
var supportedOutputs = map[string]bool{".json": true, ".csv": true}

// readVector loads the one-row matrix the extractor wrote. Anything other than a
// single finite row of features.Count values is ErrMalformedOutput.
func readVector(path, variable string) (types.FeatureVector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	defer f.Close()

	var rows [][]float64
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rows, err = decodeJSONMatrix(f, variable)
	case ".csv":
		rows, err = decodeCSVMatrix(f)
	default:
		err = fmt.Errorf("unsupported output encoding %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if len(rows) != 1 {
		return nil, fmt.Errorf("%w: %s has %d rows, want 1", ErrMalformedOutput, variable, len(rows))
	}
	v := types.FeatureVector(rows[0])
	if err := features.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return v, nil
}

// decodeJSONMatrix accepts {"<variable>": [[...]]} or a flat row {"<variable>": [...]}.
func decodeJSONMatrix(r io.Reader, variable string) ([][]float64, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	raw, ok := doc[variable]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", variable)
	}
	var cells [][]*float64
	if err := json.Unmarshal(raw, &cells); err != nil {
		var row []*float64
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("variable %q is not a numeric matrix", variable)
		}
		cells = [][]*float64{row}
	}
	matrix := make([][]float64, len(cells))
	for i, row := range cells {
		matrix[i] = make([]float64, len(row))
		for j, cell := range row {
			// encoding/json leaves null as the zero value; a null here is a missing feature.
			if cell == nil {
				return nil, fmt.Errorf("variable %q row %d col %d is null", variable, i, j)
			}
			matrix[i][j] = *cell
		}
	}
	return matrix, nil
}

func decodeCSVMatrix(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	rows := make([][]float64, 0, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			x, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %q is not a number", i, j, cell)
			}
			row[j] = x
		}
		rows = append(rows, row)
	}
	return rows, nil
}
