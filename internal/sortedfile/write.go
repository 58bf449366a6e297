package sortedfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Column is one named series written by Write.
type Column struct {
	Name   string
	Values []float64
}

// Write stores columns at path as a ";" separated table with "." decimals.
// Shorter columns are padded with empty cells. Parent directories are created.
func Write(path string, columns []Column) error {
	if len(columns) == 0 {
		return ErrNoColumns
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // Close error superseded by Flush/Sync result

	w := csv.NewWriter(f)
	w.Comma = DialectEuropean.Separator

	rows := 0
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
		rows = max(rows, len(c.Values))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, len(columns))
	for r := 0; r < rows; r++ {
		for i, c := range columns {
			record[i] = ""
			if r < len(c.Values) {
				record[i] = strconv.FormatFloat(c.Values[r], 'f', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", r, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Sync()
}
