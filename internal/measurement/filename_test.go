package measurement

import (
	"path/filepath"
	"testing"
)

func TestFilenameParser_Parse(t *testing.T) {
	p := NewFilenameParser(DefaultParserOptions())

	tests := []struct {
		name             string
		path             string
		wantFolder       string
		wantSource       string
		wantRated        float64
		wantManufacturer string
		wantModel        string
		wantWandler      string
		wantBurden       string
	}{
		{
			name:             "sorted file of unknown manufacturer",
			path:             filepath.Join("messungen_sortiert", "Parallel", "2024-Acme-ModelX-100A-8R1_sortiert.csv"),
			wantFolder:       "Parallel",
			wantSource:       "2024-Acme-ModelX-100A-8R1_sortiert.csv",
			wantRated:        100,
			wantManufacturer: "Andere",
			wantModel:        "Acme_ModelX_8R1",
			wantWandler:      "Andere Acme_ModelX_8R1",
			wantBurden:       "8R1",
		},
		{
			name:             "known manufacturer token dropped from model",
			path:             filepath.Join("root", "Dreieck", "2025-MBS-ASK31-600A-5R.csv"),
			wantFolder:       "Dreieck",
			wantSource:       "2025-MBS-ASK31-600A-5R.csv",
			wantRated:        600,
			wantManufacturer: "MBS",
			wantModel:        "ASK31_5R",
			wantWandler:      "MBS ASK31_5R",
			wantBurden:       "5R",
		},
		{
			name:             "manufacturer match is case-insensitive",
			path:             filepath.Join("x", "celsa-IMS40-250A-2R5.csv"),
			wantFolder:       "x",
			wantSource:       "celsa-IMS40-250A-2R5.csv",
			wantRated:        250,
			wantManufacturer: "Celsa",
			wantModel:        "IMS40_2R5",
			wantWandler:      "Celsa IMS40_2R5",
			wantBurden:       "2R5",
		},
		{
			name:             "no rated current",
			path:             filepath.Join("x", "Redur-Split-Core.csv"),
			wantFolder:       "x",
			wantSource:       "Redur-Split-Core.csv",
			wantRated:        0,
			wantManufacturer: "Redur",
			wantModel:        "Split_Core",
			wantWandler:      "Redur Split_Core",
		},
		{
			name:             "rated digits kept when not a whole token",
			path:             filepath.Join("x", "2024-MBS-K100-100A-8R1.csv"),
			wantFolder:       "x",
			wantSource:       "2024-MBS-K100-100A-8R1.csv",
			wantRated:        100,
			wantManufacturer: "MBS",
			wantModel:        "K100_8R1",
			wantWandler:      "MBS K100_8R1",
			wantBurden:       "8R1",
		},
		{
			name:             "strict name supplies a non-R burden",
			path:             filepath.Join("x", "2024-Acme-ModelX-100A-5VA.csv"),
			wantFolder:       "x",
			wantSource:       "2024-Acme-ModelX-100A-5VA.csv",
			wantRated:        100,
			wantManufacturer: "Andere",
			wantModel:        "Acme_ModelX_5VA",
			wantWandler:      "Andere Acme_ModelX_5VA",
			wantBurden:       "5VA",
		},
		{
			name:             "strict name supplies a lower-case rated current",
			path:             filepath.Join("x", "2024-MBS-ASK31-100a-5VA_sortiert.csv"),
			wantFolder:       "x",
			wantSource:       "2024-MBS-ASK31-100a-5VA_sortiert.csv",
			wantRated:        100,
			wantManufacturer: "MBS",
			wantModel:        "ASK31_5VA",
			wantWandler:      "MBS ASK31_5VA",
			wantBurden:       "5VA",
		},
		{
			name:             "empty survivor set falls back to whole name",
			path:             filepath.Join("x", "2024-MBS.csv"),
			wantFolder:       "x",
			wantSource:       "2024-MBS.csv",
			wantManufacturer: "MBS",
			wantModel:        "2024-MBS",
			wantWandler:      "MBS 2024-MBS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.path)

			if got.Path != tt.path {
				t.Errorf("Path = %q, want %q", got.Path, tt.path)
			}
			if got.Folder != tt.wantFolder {
				t.Errorf("Folder = %q, want %q", got.Folder, tt.wantFolder)
			}
			if got.SourceFile != tt.wantSource {
				t.Errorf("SourceFile = %q, want %q", got.SourceFile, tt.wantSource)
			}
			if got.RatedCurrent != tt.wantRated {
				t.Errorf("RatedCurrent = %v, want %v", got.RatedCurrent, tt.wantRated)
			}
			if got.Manufacturer != tt.wantManufacturer {
				t.Errorf("Manufacturer = %q, want %q", got.Manufacturer, tt.wantManufacturer)
			}
			if got.ModelKey != tt.wantModel {
				t.Errorf("ModelKey = %q, want %q", got.ModelKey, tt.wantModel)
			}
			if got.WandlerKey != tt.wantWandler {
				t.Errorf("WandlerKey = %q, want %q", got.WandlerKey, tt.wantWandler)
			}
			if got.Burden != tt.wantBurden {
				t.Errorf("Burden = %q, want %q", got.Burden, tt.wantBurden)
			}
		})
	}
}

func TestFilenameParser_Stable(t *testing.T) {
	p := NewFilenameParser(ParserOptions{})
	path := filepath.Join("a", "2024-Acme-ModelX-100A-8R1_sortiert.csv")

	if p.Parse(path) != p.Parse(path) {
		t.Error("Parse() is not stable for the same path")
	}
}

func TestFilenameParser_CustomRules(t *testing.T) {
	p := NewFilenameParser(ParserOptions{
		Manufacturers: []ManufacturerRule{{Match: "ACME", Name: "Acme GmbH"}},
		Fallback:      "Sonstige",
	})

	if got := p.Parse("2024-acme-M1-5A-1R.csv").Manufacturer; got != "Acme GmbH" {
		t.Errorf("Manufacturer = %q, want %q", got, "Acme GmbH")
	}
	if got := p.Parse("2024-Other-M1-5A-1R.csv").Manufacturer; got != "Sonstige" {
		t.Errorf("Manufacturer = %q, want %q", got, "Sonstige")
	}
}

func TestRatedCurrent(t *testing.T) {
	tests := []struct {
		name string
		want float64
	}{
		{"2024-Acme-ModelX-100A-8R1", 100},
		{"2024_Acme_5A_1R", 5},
		{"2024-Acme-ModelX-100A", 0},
		{"2024-Acme-ModelX-100a-8R1", 0},
		{"2024-Acme-ModelX", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RatedCurrent(tt.name); got != tt.want {
				t.Errorf("RatedCurrent(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBaseType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"X 8R1 Parallel", "X"},
		{"MBS ASK31_5R", "MBS ASK31"},
		{"Andere Acme_ModelX_8R1", "Andere Acme ModelX"},
		{"Celsa IMS40-L1-dreieck", "Celsa IMS40"},
		{"Redur  Split--Core", "Redur Split Core"},
		{"Messstrecke L2_PARALLEL_10r", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := BaseType(tt.key); got != tt.want {
				t.Errorf("BaseType(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestBaseType_InvariantUnderBurdenAndTopology(t *testing.T) {
	a := BaseType("X 8R1 Parallel")
	b := BaseType("X 10R Dreieck")
	if a != b {
		t.Errorf("BaseType differs: %q vs %q", a, b)
	}
}

func TestParseFilenameInfo(t *testing.T) {
	info, ok := ParseFilenameInfo("2024-Acme-ModelX-100A-8R1_sortiert.csv")
	if !ok {
		t.Fatal("ParseFilenameInfo() ok = false, want true")
	}
	want := FilenameInfo{Date: "2024", Manufacturer: "Acme", Model: "ModelX", RatedCurrent: 100, Burden: "8R1"}
	if info != want {
		t.Errorf("ParseFilenameInfo() = %+v, want %+v", info, want)
	}

	rejected := []struct {
		name string
		file string
	}{
		{"short name", "2024-Acme-ModelX.csv"},
		{"no date", "Acme-ModelX-Y-100A-8R1.csv"},
		{"no current", "2024-Acme-ModelX-Y-8R1.csv"},
		{"current not numeric", "2024-Acme-ModelX-zehnA-8R1.csv"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := ParseFilenameInfo(tt.file); ok {
				t.Errorf("ParseFilenameInfo(%q) = %+v, want ok = false", tt.file, got)
			}
		})
	}
}
