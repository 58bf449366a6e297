package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
)

// FieldKind is the value type of a sidecar field.
type FieldKind string

// Sidecar field kinds.
const (
	KindNumber FieldKind = "number"
	KindText   FieldKind = "text"
)

// Field declares one operator-maintained sidecar field.
type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
}

// DefaultFields are price, rated burden, enclosure dimensions and comment.
func DefaultFields() []Field {
	return []Field{
		{Name: "price_eur", Kind: KindNumber},
		{Name: "rated_burden_va", Kind: KindNumber},
		{Name: "depth_mm", Kind: KindNumber},
		{Name: "width_mm", Kind: KindNumber},
		{Name: "height_mm", Kind: KindNumber},
		{Name: "comment", Kind: KindText},
	}
}

// Default returns the value a field starts with.
func (f Field) Default() any {
	if f.Kind == KindText {
		return ""
	}
	return 0.0
}

// columnType is the column declaration of the field. Cells stay NULL until
// written so a column added to an older table reads as the default.
func (f Field) columnType() string {
	if f.Kind == KindText {
		return "TEXT"
	}
	return "REAL"
}

// Coerce converts v to the Go type of the field kind: float64 for numbers,
// string for text.
func (f Field) Coerce(v any) (any, error) {
	switch f.Kind {
	case KindNumber:
		n, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a number, got %v", ErrInvalidValue, f.Name, v)
		}
		return n, nil
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects text, got %v", ErrInvalidValue, f.Name, v)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidValue, f.Name, f.Kind)
	}
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Sidecar holds sidecar values by field name: float64 for number fields,
// string for text fields.
type Sidecar map[string]any

// DefaultSidecar returns the default values of fields.
func DefaultSidecar(fields []Field) Sidecar {
	s := make(Sidecar, len(fields))
	for _, f := range fields {
		s[f.Name] = f.Default()
	}
	return s
}

// Clone returns a shallow copy of s.
func (s Sidecar) Clone() Sidecar {
	c := make(Sidecar, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Number returns the number stored under name.
func (s Sidecar) Number(name string) float64 {
	n, _ := toNumber(s[name]) //nolint:errcheck // Missing or malformed values read as 0
	return n
}

// Text returns the text stored under name.
func (s Sidecar) Text(name string) string {
	t, _ := s[name].(string) //nolint:errcheck // Missing values read as ""
	return t
}

// Row is one persisted record with its sidecar values.
type Row struct {
	measurement.ComparisonRecord

	Sidecar Sidecar `json:"sidecar"`

	// EditedAt is the last operator edit of the sidecar; zero when never edited.
	EditedAt time.Time `json:"sidecar_edited_at,omitzero"`
}

// Filter selects rows in Records. Zero fields match everything.
type Filter struct {
	BaseType   string
	WandlerKey string
	Folder     string
	Phase      string
	Mode       measurement.Mode
	Level      int
	SourceFile string
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Row) bool {
	switch {
	case f.BaseType != "" && r.BaseType != f.BaseType,
		f.WandlerKey != "" && r.WandlerKey != f.WandlerKey,
		f.Folder != "" && r.Folder != f.Folder,
		f.Phase != "" && r.Phase != f.Phase,
		f.Mode != "" && r.Mode != f.Mode,
		f.Level != 0 && r.TargetLoad != f.Level,
		f.SourceFile != "" && r.SourceFile != f.SourceFile:
		return false
	}
	return true
}
