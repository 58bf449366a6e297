package sortedfile

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func TestParse_EuropeanDialect(t *testing.T) {
	data := []byte("Zeit;05_L1_PAC1_I\n0;5,01\n1;abc\n2;4,99\n")

	tbl, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if tbl.Dialect() != DialectEuropean {
		t.Errorf("Dialect() = %+v, want European", tbl.Dialect())
	}
	if tbl.Encoding() != "utf-8" {
		t.Errorf("Encoding() = %q, want utf-8", tbl.Encoding())
	}
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
	if got := tbl.Values("05_L1_PAC1_I"); !slices.Equal(got, []float64{5.01, 4.99}) {
		t.Errorf("Values() = %v, want [5.01 4.99]", got)
	}
	if got := tbl.Filled("05_L1_PAC1_I"); !slices.Equal(got, []float64{5.01, 0, 4.99}) {
		t.Errorf("Filled() = %v, want [5.01 0 4.99]", got)
	}
	if got := tbl.Values("missing"); got != nil {
		t.Errorf("Values(missing) = %v, want nil", got)
	}
}

func TestParse_EnglishDialect(t *testing.T) {
	tbl, err := Parse([]byte("a,b\n1.5,2\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tbl.Dialect() != DialectEnglish {
		t.Errorf("Dialect() = %+v, want English", tbl.Dialect())
	}
	if got := tbl.Values("a"); !slices.Equal(got, []float64{1.5}) {
		t.Errorf("Values(a) = %v, want [1.5]", got)
	}
}

func TestParse_UTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, _, err := transform.Bytes(enc, []byte("Zeit;05_L1_DUT1_I\n0;1,5\n"))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	tbl, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tbl.Encoding() != "utf-16" {
		t.Errorf("Encoding() = %q, want utf-16", tbl.Encoding())
	}
	if got := tbl.Values("05_L1_DUT1_I"); !slices.Equal(got, []float64{1.5}) {
		t.Errorf("Values() = %v, want [1.5]", got)
	}
}

func TestParse_Windows1252(t *testing.T) {
	tbl, err := Parse([]byte("Zeit;05_L1_I_Pr\xfcfling\n1;2\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tbl.Encoding() != "windows-1252" {
		t.Errorf("Encoding() = %q, want windows-1252", tbl.Encoding())
	}
	if !tbl.Has("05_L1_I_Prüfling") {
		t.Errorf("Headers() = %q, want decoded umlaut", tbl.Headers())
	}
}

func TestParse_HeaderCleanup(t *testing.T) {
	tbl, err := Parse([]byte("\xef\xbb\xbf\" Zeit \"; 05_L1_PAC1_I \n1;2\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []string{"Zeit", "05_L1_PAC1_I"}
	if got := tbl.Headers(); !slices.Equal(got, want) {
		t.Errorf("Headers() = %q, want %q", got, want)
	}
}

func TestParse_SingleColumn(t *testing.T) {
	_, err := Parse([]byte("Zeit\n1\n2\n"))
	if !errors.Is(err, ErrTooFewColumns) {
		t.Errorf("Parse() error = %v, want ErrTooFewColumns", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("Load() error = %v, want ErrUnreadable", err)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		cell    string
		decimal rune
		want    float64
		wantOk  bool
	}{
		{"1.25", '.', 1.25, true},
		{"1,25", ',', 1.25, true},
		{"1.25", ',', 1.25, true},
		{"1,25", '.', 0, false},
		{" 7 ", ',', 7, true},
		{"", ',', 0, false},
		{"n/a", ',', 0, false},
		{"-3,5e2", ',', -350, true},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			got, ok := ParseNumber(tt.cell, tt.decimal)
			if ok != tt.wantOk || got != tt.want {
				t.Errorf("ParseNumber(%q, %q) = %v, %v; want %v, %v", tt.cell, tt.decimal, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "file_sortiert.csv")

	err := Write(path, []Column{
		{Name: "05_L1_PAC1_t", Values: []float64{0, 0.5, 1}},
		{Name: "05_L1_PAC1_I", Values: []float64{5.01, 4.99}},
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
	if got := tbl.Values("05_L1_PAC1_I"); !slices.Equal(got, []float64{5.01, 4.99}) {
		t.Errorf("Values() = %v, want [5.01 4.99]", got)
	}
	if got := tbl.Values("05_L1_PAC1_t"); !slices.Equal(got, []float64{0, 0.5, 1}) {
		t.Errorf("Values(t) = %v, want [0 0.5 1]", got)
	}
}

func TestWrite_NoColumns(t *testing.T) {
	if err := Write(filepath.Join(t.TempDir(), "x.csv"), nil); !errors.Is(err, ErrNoColumns) {
		t.Errorf("Write() error = %v, want ErrNoColumns", err)
	}
}
