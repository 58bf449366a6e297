package store

import (
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
)

// MergeStats describes one Merge.
type MergeStats struct {
	// Records is the number of rows in the merged table.
	Records int `json:"records"`

	// Duplicates is the number of new records superseded by a later duplicate.
	Duplicates int `json:"duplicates"`

	// RescuedTypes is the number of base types with a sidecar in the prior store.
	RescuedTypes int `json:"rescued_types"`

	// Restored is the number of merged rows that received a rescued sidecar.
	Restored int `json:"restored"`
}

// rescued is the sidecar state of one base type taken from the prior store.
type rescued struct {
	sidecar  Sidecar
	editedAt time.Time
}

// Merge combines freshly computed records with the prior store.
//
// The result holds exactly the deduplicated new records; prior rows only
// contribute sidecar values through their base type. When several prior rows
// share a base type, the last one in prior wins. For prior rows read by
// Store.Load that is the most recently stamped edit, then the highest rowid;
// edit times are not compared beyond that ordering. Merge does not modify
// its inputs, and running it twice on the same inputs yields the same rows.
func Merge(records []measurement.ComparisonRecord, prior []Row, fields []Field) ([]Row, MergeStats) {
	var stats MergeStats

	rescue := make(map[string]rescued)
	for _, p := range prior {
		bt := p.BaseType
		if bt == "" {
			bt = measurement.BaseType(p.WandlerKey)
		}
		rescue[bt] = rescued{sidecar: p.Sidecar, editedAt: p.EditedAt}
	}
	stats.RescuedTypes = len(rescue)

	last := make(map[measurement.DedupKey]int, len(records))
	for i, r := range records {
		last[r.Key()] = i
	}

	rows := make([]Row, 0, len(last))
	for i, r := range records {
		if last[r.Key()] != i {
			stats.Duplicates++
			continue
		}

		r.BaseType = measurement.BaseType(r.WandlerKey)
		row := Row{ComparisonRecord: r, Sidecar: DefaultSidecar(fields)}

		if old, ok := rescue[r.BaseType]; ok {
			restore(row.Sidecar, old.sidecar, fields)
			row.EditedAt = old.editedAt
			stats.Restored++
		}
		rows = append(rows, row)
	}
	stats.Records = len(rows)

	return rows, stats
}

// restore overwrites dst field by field with the values present in src.
// Values that do not fit the field kind leave the default in place.
func restore(dst, src Sidecar, fields []Field) {
	for _, f := range fields {
		v, ok := src[f.Name]
		if !ok || v == nil {
			continue
		}
		if c, err := f.Coerce(v); err == nil {
			dst[f.Name] = c
		}
	}
}
