package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/accuracy"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
)

// exportSeparator matches the sorted file dialect so the export opens in the
// same spreadsheet setup.
const exportSeparator = ';'

// WriteCSV writes rows as a flat table: the record columns in table order,
// one column per sidecar field, the edit time and, when class is positive,
// the ratio error, limit and verdict for that accuracy class.
func WriteCSV(w io.Writer, rows []Row, fields []Field, class float64) error {
	cw := csv.NewWriter(w)
	cw.Comma = exportSeparator

	header := make([]string, 0, len(recordColumns)+len(fields)+4)
	for _, c := range recordColumns {
		header = append(header, c.name)
	}
	for _, f := range fields {
		header = append(header, f.Name)
	}
	header = append(header, editedAtColumn)
	if class > 0 {
		header = append(header, "error_pct", "limit_pct", "within")
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := range rows {
		r := &rows[i]
		rec := make([]string, 0, len(header))
		for _, c := range recordColumns {
			rec = append(rec, formatCell(c.field(r)))
		}
		for _, f := range fields {
			if f.Kind == KindText {
				rec = append(rec, r.Sidecar.Text(f.Name))
			} else {
				rec = append(rec, formatFloat(r.Sidecar.Number(f.Name)))
			}
		}
		edited := ""
		if !r.EditedAt.IsZero() {
			edited = r.EditedAt.UTC().Format(timeLayout)
		}
		rec = append(rec, edited)
		if class > 0 {
			rec = append(rec, evaluationCells(r.ComparisonRecord, class)...)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func evaluationCells(r measurement.ComparisonRecord, class float64) []string {
	res := accuracy.Evaluate(r, class)
	if !res.OK {
		if errPct, ok := accuracy.RatioError(r.DUTMean, r.RefMean); ok {
			return []string{formatFloat(errPct), "", ""}
		}
		return []string{"", "", ""}
	}
	return []string{formatFloat(res.ErrorPct), formatFloat(res.LimitPct), strconv.FormatBool(res.Within)}
}

func formatCell(field any) string {
	switch p := field.(type) {
	case *string:
		return *p
	case *measurement.Mode:
		return string(*p)
	case *float64:
		return formatFloat(*p)
	case *int:
		return strconv.Itoa(*p)
	default:
		return ""
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
