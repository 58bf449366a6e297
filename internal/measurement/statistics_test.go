package measurement

import (
	"errors"
	"math"
	"testing"
)

// fakeColumns serves column values from memory.
type fakeColumns map[string][]float64

func (f fakeColumns) Values(column string) []float64 {
	return append([]float64(nil), f[column]...)
}

const epsilon = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// analyse runs resolver, selector and computer over one in-memory file.
func analyse(t *testing.T, path string, cols fakeColumns) []ComparisonRecord {
	t.Helper()

	file := NewFilenameParser(DefaultParserOptions()).Parse(path)
	headers := make([]string, 0, len(cols))
	for h := range cols {
		headers = append(headers, h)
	}

	m, err := NewChannelResolver(nil, nil).Resolve(headers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	selector := NewKeywordSelector(nil)
	computer := NewStatisticsComputer("", nil)

	var out []ComparisonRecord
	for _, g := range m.Groups() {
		ref, err := selector.SelectGroup(g)
		if err != nil {
			t.Fatalf("SelectGroup() error = %v", err)
		}
		recs, err := computer.Compute(file, g, ref, cols)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		out = append(out, recs...)
	}
	return out
}

func TestCompute_EndToEndScenario(t *testing.T) {
	recs := analyse(t, "2024-Acme-ModelX-100A-8R1.csv", fakeColumns{
		"05_L1_PAC1_I": {5.0, 5.1, 4.9},
		"05_L1_DUT1_I": {5.02, 5.04, 5.0},
	})

	var deviceRef, nominalRef []ComparisonRecord
	for _, r := range recs {
		switch r.Mode {
		case ModeDeviceRef:
			deviceRef = append(deviceRef, r)
		case ModeNominalRef:
			nominalRef = append(nominalRef, r)
		}
		if r.TargetLoad != 5 || r.Phase != "L1" {
			t.Errorf("record at %d/%s, want 5/L1", r.TargetLoad, r.Phase)
		}
		if r.SourceFile != "2024-Acme-ModelX-100A-8R1.csv" {
			t.Errorf("SourceFile = %q", r.SourceFile)
		}
	}

	if len(deviceRef) != 1 {
		t.Fatalf("device_ref records = %d, want 1", len(deviceRef))
	}
	if deviceRef[0].DUTName != "DUT1" || deviceRef[0].RefName != "PAC1" {
		t.Errorf("device_ref = %s vs %s, want DUT1 vs PAC1", deviceRef[0].DUTName, deviceRef[0].RefName)
	}
	if !approx(deviceRef[0].RefMean, 5.0) {
		t.Errorf("device_ref RefMean = %v, want 5.0", deviceRef[0].RefMean)
	}
	if !approx(deviceRef[0].DUTMean, 5.02) {
		t.Errorf("device_ref DUTMean = %v, want 5.02", deviceRef[0].DUTMean)
	}

	if len(nominalRef) != 2 {
		t.Fatalf("nominal_ref records = %d, want 2", len(nominalRef))
	}
	duts := map[string]bool{}
	for _, r := range nominalRef {
		duts[r.DUTName] = true
		if r.RefMean != 5.0 {
			t.Errorf("nominal RefMean = %v, want 5.0", r.RefMean)
		}
		if r.RefStd != 0 {
			t.Errorf("nominal RefStd = %v, want 0", r.RefStd)
		}
		if r.RefName != DefaultNominalRefName {
			t.Errorf("nominal RefName = %q, want %q", r.RefName, DefaultNominalRefName)
		}
	}
	if !duts["PAC1"] || !duts["DUT1"] {
		t.Errorf("nominal DUTs = %v, want PAC1 and DUT1", duts)
	}
}

func TestCompute_RecordFields(t *testing.T) {
	recs := analyse(t, "Parallel/2025-MBS-ASK31-600A-5R_sortiert.csv", fakeColumns{
		"20_L2_PAC1_I": {120, 120},
		"20_L2_DUT1_I": {119, 121},
	})
	if len(recs) == 0 {
		t.Fatal("no records")
	}

	r := recs[0]
	if r.WandlerKey != "MBS ASK31_5R" {
		t.Errorf("WandlerKey = %q", r.WandlerKey)
	}
	if r.BaseType != "MBS ASK31" {
		t.Errorf("BaseType = %q", r.BaseType)
	}
	if r.Folder != "Parallel" {
		t.Errorf("Folder = %q", r.Folder)
	}
	if r.RatedCurrent != 600 || r.Manufacturer != "MBS" || r.Burden != "5R" {
		t.Errorf("identity = %v/%q/%q", r.RatedCurrent, r.Manufacturer, r.Burden)
	}
}

func TestCompute_NoSelfComparison(t *testing.T) {
	recs := analyse(t, "2024-Acme-M-10A-1R.csv", fakeColumns{
		"50_L3_PAC1_I":  {5, 5},
		"50_L3_DUT1_I":  {5, 5},
		"50_L3_DUT2_I":  {5, 5},
		"50_L3_I_Other": {5, 5},
	})

	for _, r := range recs {
		if r.Mode == ModeDeviceRef && r.DUTName == r.RefName {
			t.Errorf("device_ref record compares %q with itself", r.DUTName)
		}
	}
}

func TestCompute_NoRatedCurrent(t *testing.T) {
	recs := analyse(t, "Acme-ModelX.csv", fakeColumns{
		"05_L1_PAC1_I": {1, 2},
		"05_L1_DUT1_I": {1, 2},
	})

	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Mode != ModeDeviceRef {
		t.Errorf("Mode = %q, want device_ref", recs[0].Mode)
	}
}

func TestCompute_EmptyReferenceSeries(t *testing.T) {
	recs := analyse(t, "2024-Acme-ModelX-100A-8R1.csv", fakeColumns{
		"05_L1_PAC1_I": {math.NaN()},
		"05_L1_DUT1_I": {5, 5},
	})

	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Mode != ModeNominalRef || recs[0].DUTName != "DUT1" {
		t.Errorf("record = %s/%s, want nominal_ref for DUT1", recs[0].Mode, recs[0].DUTName)
	}
}

func TestCompute_ZeroReferenceMean(t *testing.T) {
	recs := analyse(t, "Acme-ModelX.csv", fakeColumns{
		"05_L1_PAC1_I": {0, 0},
		"05_L1_DUT1_I": {1, 1},
	})

	if len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
}

func TestCompute_EmptyDeviceSkipped(t *testing.T) {
	recs := analyse(t, "2024-Acme-ModelX-100A-8R1.csv", fakeColumns{
		"05_L1_PAC1_I": {5, 5},
		"05_L1_DUT1_I": {},
	})

	for _, r := range recs {
		if r.DUTName == "DUT1" {
			t.Errorf("record emitted for empty device: %+v", r)
		}
	}
	if len(recs) != 1 {
		t.Errorf("records = %d, want 1 (nominal for PAC1)", len(recs))
	}
}

func TestCompute_PlaceholderRenamed(t *testing.T) {
	recs := analyse(t, "2024-Celsa-IMS40-250A-2R5.csv", fakeColumns{
		"05_L1_I_Einspeisung": {12.5},
		"05_L1_I_Pruefling":   {12.4},
	})

	found := false
	for _, r := range recs {
		if r.DUTName == "Pruefling" {
			t.Errorf("placeholder name kept: %+v", r)
		}
		if r.DUTName == "Celsa (Prüfling)" && r.Mode == ModeDeviceRef {
			found = true
			if r.RefName != "Einspeisung" {
				t.Errorf("RefName = %q, want Einspeisung", r.RefName)
			}
		}
	}
	if !found {
		t.Error("no device_ref record for Celsa (Prüfling)")
	}
}

func TestCompute_UnknownReference(t *testing.T) {
	c := NewStatisticsComputer("", nil)
	g := ChannelGroup{Level: 5, Phase: "L1", Devices: []string{"A"}, Columns: map[string]string{"A": "05_L1_A_I"}}

	_, err := c.Compute(MeasurementFile{}, g, "B", fakeColumns{})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Compute() error = %v, want ErrUnknownDevice", err)
	}
}

func TestMeanAndSampleStd(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	if got := Mean(values); got != 5 {
		t.Errorf("Mean() = %v, want 5", got)
	}
	if got, want := SampleStd(values), math.Sqrt(32.0/7.0); !approx(got, want) {
		t.Errorf("SampleStd() = %v, want %v", got, want)
	}
	if got := SampleStd([]float64{3}); got != 0 {
		t.Errorf("SampleStd(single) = %v, want 0", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}
