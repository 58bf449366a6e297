package plateau

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/sortedfile"
)

// ============================================================================
// Channel discovery
// ============================================================================

func TestDevices(t *testing.T) {
	headers := []string{"Zeit", "PAC1 L1 ValueY", "PAC1 L2 ValueY", "K3_L1_ValueY", "ValueX"}

	if got, want := Devices(headers), []string{"K3", "PAC1"}; !slices.Equal(got, want) {
		t.Errorf("Devices() = %v, want %v", got, want)
	}
}

func TestChannels(t *testing.T) {
	chs := Channels([]string{"Zeit", "PAC1 L1 ValueY", "K3_L2_ValueY", "ValueY"})

	want := []Channel{
		{Device: "PAC1", Phase: "L1", Column: "PAC1 L1 ValueY"},
		{Device: "K3", Phase: "L2", Column: "K3_L2_ValueY"},
	}
	if !slices.Equal(chs, want) {
		t.Errorf("Channels() = %+v, want %+v", chs, want)
	}
}

// ============================================================================
// Ranges
// ============================================================================

func TestRange_Valid(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		n    int
		want bool
	}{
		{"inside", Range{1, 5}, 10, true},
		{"ends at length", Range{5, 10}, 10, true},
		{"starts at zero", Range{0, 5}, 10, false},
		{"empty", Range{5, 5}, 10, false},
		{"past end", Range{5, 11}, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Valid(tt.n); got != tt.want {
				t.Errorf("Valid(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestFixDuration(t *testing.T) {
	in := Ranges{5: {100, 900}, 20: {0, 0}, 50: {10, 300}}

	got := FixDuration(in, 560)

	want := Ranges{5: {340, 900}, 20: {0, 0}, 50: {0, 300}}
	for level, r := range want {
		if got[level] != r {
			t.Errorf("level %d = %+v, want %+v", level, got[level], r)
		}
	}
	if in[5] != (Range{100, 900}) {
		t.Error("FixDuration() modified its input")
	}
}

func TestLoadRanges_Missing(t *testing.T) {
	rf, err := LoadRanges(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadRanges() error = %v", err)
	}
	if len(rf) != 0 {
		t.Errorf("LoadRanges() = %v, want empty", rf)
	}
}

func TestSaveThenLoadRanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved_configs.json")
	rf := RangeFile{"2024-Acme-ModelX-100A-8R1": {5: {10, 600}, 120: {700, 1200}}}

	if err := SaveRanges(path, rf); err != nil {
		t.Fatalf("SaveRanges() error = %v", err)
	}
	got, err := LoadRanges(path)
	if err != nil {
		t.Fatalf("LoadRanges() error = %v", err)
	}
	r := got["2024-Acme-ModelX-100A-8R1"]
	if r[5] != (Range{10, 600}) || r[120] != (Range{700, 1200}) {
		t.Errorf("LoadRanges() = %+v", got)
	}
	if levels := r.Levels(); !slices.Equal(levels, []int{5, 120}) {
		t.Errorf("Levels() = %v, want [5 120]", levels)
	}
}

func TestLoadRanges_InvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	if err := os.WriteFile(path, []byte(`{"f": {"five": [1, 2]}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRanges(path); err == nil {
		t.Error("LoadRanges() error = nil, want invalid level error")
	}
}

// ============================================================================
// Detection
// ============================================================================

func TestDetect(t *testing.T) {
	ref := []float64{0, 4, 5, 5, 5.1, 4.9, 5, 20, 20, 20, 0, 20}

	got := Detect(ref, 100, []int{5, 20, 50}, 3, 3)

	if got[5] != (Range{1, 7}) {
		t.Errorf("level 5 = %+v, want {1 7}", got[5])
	}
	if got[20] != (Range{7, 10}) {
		t.Errorf("level 20 = %+v, want {7 10}", got[20])
	}
	if _, ok := got[50]; ok {
		t.Error("level 50 detected, want absent")
	}
}

func TestDetect_MinSamplesAndRated(t *testing.T) {
	ref := []float64{0, 5, 5, 0}

	if got := Detect(ref, 100, []int{5}, 3, 3); len(got) != 0 {
		t.Errorf("Detect() = %v, want no plateau shorter than min samples", got)
	}
	if got := Detect(ref, 0, []int{5}, 3, 1); len(got) != 0 {
		t.Errorf("Detect() = %v, want empty for unknown rated current", got)
	}
}

// ============================================================================
// Slicing
// ============================================================================

// writeRaw creates a raw export with a reference and one device on L1.
func writeRaw(t *testing.T, path string, ref, dut []float64) {
	t.Helper()

	idx := make([]float64, len(ref))
	for i := range idx {
		idx[i] = float64(i)
	}
	err := sortedfile.Write(path, []sortedfile.Column{
		{Name: "Zeit", Values: idx},
		{Name: "DUT1 L1 ValueY", Values: dut},
		{Name: "PAC1 L1 ValueY", Values: ref},
	})
	if err != nil {
		t.Fatalf("writing raw fixture: %v", err)
	}
}

func TestSlicer_Slice(t *testing.T) {
	dir := t.TempDir()
	rawDir := filepath.Join(dir, "messungen")
	outDir := filepath.Join(dir, "messungen_sortiert")
	raw := filepath.Join(rawDir, "Parallel", "2024-Acme-ModelX-100A-8R1.csv")
	writeRaw(t, raw,
		[]float64{0, 1, 5, 5.1, 4.9, 9},
		[]float64{0, 1, 5.02, 5.04, 5.0, 9},
	)

	s := NewSlicer(Options{RawDir: rawDir, OutputDir: outDir, Phases: []string{"L1"}}, RangeFile{
		"2024-Acme-ModelX-100A-8R1": {5: {2, 5}, 20: {0, 0}},
	})

	out, err := s.Slice(raw)
	if err != nil {
		t.Fatalf("Slice() error = %v", err)
	}
	if want := filepath.Join(outDir, "Parallel", "2024-Acme-ModelX-100A-8R1_sortiert.csv"); out != want {
		t.Errorf("Slice() = %q, want %q", out, want)
	}

	tbl, err := sortedfile.Load(out)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	wantHeaders := []string{"05_L1_PAC1_t", "05_L1_PAC1_I", "05_L1_DUT1_t", "05_L1_DUT1_I"}
	if got := tbl.Headers(); !slices.Equal(got, wantHeaders) {
		t.Errorf("Headers() = %v, want %v", got, wantHeaders)
	}
	if got := tbl.Values("05_L1_PAC1_I"); !slices.Equal(got, []float64{5, 5.1, 4.9}) {
		t.Errorf("PAC1 values = %v, want [5 5.1 4.9]", got)
	}

	m, err := measurement.NewChannelResolver(nil, nil).Resolve(tbl.Headers())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	g, ok := m.Group(5, "L1")
	if !ok || !slices.Equal(g.Devices, []string{"PAC1", "DUT1"}) {
		t.Errorf("resolved group = %+v, want PAC1 and DUT1", g)
	}
}

func TestSlicer_DetectsWithoutRanges(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw", "2024-Acme-ModelX-100A-8R1.csv")
	writeRaw(t, raw,
		[]float64{0, 5, 5, 5, 0, 0},
		[]float64{0, 5, 5, 5, 0, 0},
	)

	s := NewSlicer(Options{
		RawDir:       filepath.Join(dir, "raw"),
		OutputDir:    filepath.Join(dir, "out"),
		Levels:       []int{5},
		Phases:       []string{"L1"},
		TolerancePct: 3,
		MinSamples:   3,
	}, nil)

	if _, err := s.Slice(raw); err != nil {
		t.Fatalf("Slice() error = %v", err)
	}
	if got := s.Ranges()["2024-Acme-ModelX-100A-8R1"][5]; got != (Range{1, 4}) {
		t.Errorf("detected range = %+v, want {1 4}", got)
	}
}

func TestSlicer_Errors(t *testing.T) {
	dir := t.TempDir()

	noChannels := filepath.Join(dir, "a.csv")
	if err := os.WriteFile(noChannels, []byte("Zeit;Wert\n1;2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	noRanges := filepath.Join(dir, "Acme-ModelX.csv")
	writeRaw(t, noRanges, []float64{0, 5}, []float64{0, 5})

	s := NewSlicer(Options{RawDir: dir, OutputDir: filepath.Join(dir, "out")}, nil)

	if _, err := s.Slice(noChannels); !errors.Is(err, ErrNoChannels) {
		t.Errorf("Slice(no channels) error = %v, want ErrNoChannels", err)
	}
	if _, err := s.Slice(noRanges); !errors.Is(err, ErrNoRanges) {
		t.Errorf("Slice(no ranges) error = %v, want ErrNoRanges", err)
	}
}

func TestSlicer_SliceAll(t *testing.T) {
	dir := t.TempDir()
	rawDir := filepath.Join(dir, "messungen")
	outDir := filepath.Join(rawDir, "messungen_sortiert")

	writeRaw(t, filepath.Join(rawDir, "2024-Acme-ModelX-100A-8R1.csv"),
		[]float64{0, 5, 5, 5}, []float64{0, 5, 5, 5})
	writeRaw(t, filepath.Join(rawDir, "old_sortiert.csv"),
		[]float64{0, 5}, []float64{0, 5})
	writeRaw(t, filepath.Join(outDir, "2024-Acme-ModelX-100A-8R1.csv"),
		[]float64{0, 5}, []float64{0, 5})

	s := NewSlicer(Options{RawDir: rawDir, OutputDir: outDir, Phases: []string{"L1"}}, RangeFile{
		"2024-Acme-ModelX-100A-8R1": {5: {1, 4}},
	})

	res, err := s.SliceAll(context.Background())
	if err != nil {
		t.Fatalf("SliceAll() error = %v", err)
	}
	if len(res.Written) != 1 {
		t.Errorf("Written = %v, want one file", res.Written)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", res.Skipped)
	}
}
