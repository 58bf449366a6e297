package sortedfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Dialect describes the separator and decimal mark of a table.
type Dialect struct {
	Separator rune
	Decimal   rune
}

// Supported dialects in detection order.
var (
	DialectEuropean = Dialect{Separator: ';', Decimal: ','}
	DialectEnglish  = Dialect{Separator: ',', Decimal: '.'}
)

var dialects = []Dialect{DialectEuropean, DialectEnglish}

// decoder is one candidate encoding.
type decoder struct {
	name   string
	decode func([]byte) (string, error)
}

// errReplacement marks a single-byte decode that hit undefined code points.
var errReplacement = errors.New("undefined code point")

var decoders = []decoder{
	{name: "utf-16", decode: func(b []byte) (string, error) {
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), b)
	}},
	{name: "utf-8", decode: func(b []byte) (string, error) {
		b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(b) {
			return "", errors.New("invalid utf-8")
		}
		return string(b), nil
	}},
	{name: "windows-1252", decode: func(b []byte) (string, error) {
		s, err := decodeWith(charmap.Windows1252, b)
		if err != nil {
			return "", err
		}
		if strings.ContainsRune(s, utf8.RuneError) {
			return "", errReplacement
		}
		return s, nil
	}},
	{name: "latin-1", decode: func(b []byte) (string, error) {
		return decodeWith(charmap.ISO8859_1, b)
	}},
}

func decodeWith(enc encoding.Encoding, b []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Table is a parsed sorted file. Columns are addressed by header name.
type Table struct {
	headers  []string
	index    map[string]int
	rows     [][]string
	dialect  Dialect
	encoding string
}

// Load reads and parses the table at path.
//
// Returns ErrUnreadable (wrapped) when the file cannot be read or decoded.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse detects encoding and dialect of data and parses it.
func Parse(data []byte) (*Table, error) {
	sawText := false
	for _, dec := range decoders {
		text, err := dec.decode(data)
		if err != nil {
			continue
		}
		sawText = true
		for _, d := range dialects {
			t, err := parseText(text, d)
			if err != nil {
				continue
			}
			t.encoding = dec.name
			return t, nil
		}
	}
	if sawText {
		return nil, ErrTooFewColumns
	}
	return nil, ErrUnreadable
}

func parseText(text string, d Dialect) (*Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = d.Separator
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, ErrTooFewColumns
	}

	t := &Table{
		headers: make([]string, len(header)),
		index:   make(map[string]int, len(header)),
		dialect: d,
	}
	for i, h := range header {
		h = cleanHeader(h)
		t.headers[i] = h
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.rows = append(t.rows, rec)
	}

	return t, nil
}

func cleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Trim(h, " \t\r\"'")
}

// Headers returns the cleaned header row.
func (t *Table) Headers() []string {
	return append([]string(nil), t.headers...)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Dialect returns the detected dialect.
func (t *Table) Dialect() Dialect {
	return t.dialect
}

// Encoding returns the name of the detected encoding.
func (t *Table) Encoding() string {
	return t.encoding
}

// Has reports whether the table has a column named col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Values returns the numeric cells of col in row order. Empty, non-numeric
// and NaN cells are dropped. An unknown column yields nil.
func (t *Table) Values(col string) []float64 {
	i, ok := t.index[col]
	if !ok {
		return nil
	}
	var out []float64
	for _, row := range t.rows {
		if i >= len(row) {
			continue
		}
		v, ok := t.number(row[i])
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Filled returns col with one value per row; cells that are not numbers
// become 0. An unknown column yields nil.
func (t *Table) Filled(col string) []float64 {
	i, ok := t.index[col]
	if !ok {
		return nil
	}
	out := make([]float64, len(t.rows))
	for r, row := range t.rows {
		if i >= len(row) {
			continue
		}
		if v, ok := t.number(row[i]); ok {
			out[r] = v
		}
	}
	return out
}

func (t *Table) number(cell string) (float64, bool) {
	v, ok := ParseNumber(cell, t.dialect.Decimal)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseNumber parses a cell using decimal as decimal mark. Cells that parse
// with "." are accepted in either dialect.
func ParseNumber(cell string, decimal rune) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v, true
	}
	if decimal != ',' || !strings.Contains(cell, ",") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(cell, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
