package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadCSV reads a table from CSV data with a header row. Columns named in
// labelColumns are read as label columns; all other columns must parse as
// floats.
func ReadCSV(name string, r io.Reader, labelColumns ...string) (*Table, error) {
	isLabel := make(map[string]bool, len(labelColumns))
	for _, c := range labelColumns {
		isLabel[c] = true
	}

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %v", err)
	}

	floats := make([][]float64, len(header))
	labels := make([][]string, len(header))

	row := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %v", row+1, err)
		}
		for i, field := range rec {
			if isLabel[header[i]] {
				labels[i] = append(labels[i], field)
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %v", row+1, header[i], err)
			}
			floats[i] = append(floats[i], v)
		}
		row++
	}

	t := NewTable(name)
	for i, col := range header {
		if isLabel[col] {
			if err := t.AddLabelColumn(col, labels[i]); err != nil {
				return nil, err
			}
			continue
		}
		if err := t.AddColumn(col, floats[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadCSVFile reads a table from a CSV file, naming it after the path.
func ReadCSVFile(path string, labelColumns ...string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	return ReadCSV(path, f, labelColumns...)
}
