package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/database"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
	_ "github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/migrations"
)

// mockLogger records warnings.
type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

// openDB opens an empty database, migrated when migrate is true.
func openDB(t *testing.T, migrate bool) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "messdaten.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if migrate {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
	}
	return db
}

// clock returns a now func advancing one minute per call.
func clock() func() time.Time {
	t := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestStore_ReplaceAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)

	recs := []measurement.ComparisonRecord{
		record("Acme Model1_8R1", "a.csv", "DUT1", 5.03),
		record("Acme Model1_8R1", "a.csv", "DUT2", 4.98),
	}
	recs[1].Mode = measurement.ModeNominalRef
	recs[1].RefName = "Nennwert"

	stats, err := s.Replace(ctx, recs)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if stats.Records != 2 {
		t.Errorf("stats.Records = %d, want 2", stats.Records)
	}

	rows, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Load() = %d rows, want 2", len(rows))
	}
	for i, r := range rows {
		want := recs[i]
		want.BaseType = "Acme Model1"
		if r.ComparisonRecord != want {
			t.Errorf("row %d = %+v, want %+v", i, r.ComparisonRecord, want)
		}
		if !reflect.DeepEqual(r.Sidecar, DefaultSidecar(DefaultFields())) {
			t.Errorf("row %d sidecar = %v, want defaults", i, r.Sidecar)
		}
		if !r.EditedAt.IsZero() {
			t.Errorf("row %d EditedAt = %v, want zero", i, r.EditedAt)
		}
	}
}

func TestStore_ReplaceIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)
	recs := []measurement.ComparisonRecord{
		record("Acme Model1", "a.csv", "DUT1", 5.03),
		record("Acme Model1", "a.csv", "DUT1", 5.05),
		record("Other", "b.csv", "DUT1", 5.0),
	}

	if _, err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("first Replace() error = %v", err)
	}
	first, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}
	second, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(first) != 2 || !reflect.DeepEqual(first, second) {
		t.Errorf("Replace() not idempotent:\n%v\n%v", first, second)
	}
}

func TestStore_SidecarSurvivesReaggregation(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)
	s.now = clock()

	if _, err := s.Replace(ctx, []measurement.ComparisonRecord{record("Acme Model1", "a.csv", "DUT1", 5.03)}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	n, err := s.EditSidecar(ctx, "a.csv", Sidecar{"price_eur": 12.5, "comment": "Angebot 2026"})
	if err != nil {
		t.Fatalf("EditSidecar() error = %v", err)
	}
	if n != 1 {
		t.Errorf("EditSidecar() = %d, want 1", n)
	}

	fresh := []measurement.ComparisonRecord{
		record("Acme Model1_8R1", "a2.csv", "DUT1", 5.07),
		record("Acme Model1 Dreieck", "a3.csv", "DUT1", 5.01),
	}
	if _, err := s.Replace(ctx, fresh); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	rows, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Load() = %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Sidecar.Number("price_eur") != 12.5 {
			t.Errorf("%s price_eur = %v, want 12.5", r.SourceFile, r.Sidecar["price_eur"])
		}
		if r.Sidecar.Text("comment") != "Angebot 2026" {
			t.Errorf("%s comment = %q", r.SourceFile, r.Sidecar.Text("comment"))
		}
		if r.EditedAt.IsZero() {
			t.Errorf("%s EditedAt is zero, want carried edit time", r.SourceFile)
		}
	}
	if rows[0].DUTMean != 5.07 {
		t.Errorf("DUTMean = %v, want 5.07 from fresh data", rows[0].DUTMean)
	}
}

func TestStore_MostRecentEditWins(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)
	s.now = clock()

	recs := []measurement.ComparisonRecord{
		record("Acme Model1 Parallel", "b.csv", "DUT1", 5.0),
		record("Acme Model1 Dreieck", "a.csv", "DUT1", 5.0),
	}
	if _, err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if _, err := s.EditSidecar(ctx, "a.csv", Sidecar{"price_eur": 1.0}); err != nil {
		t.Fatalf("EditSidecar(a) error = %v", err)
	}
	if _, err := s.EditSidecar(ctx, "b.csv", Sidecar{"price_eur": 2.0}); err != nil {
		t.Fatalf("EditSidecar(b) error = %v", err)
	}

	sidecars, err := s.Sidecars(ctx)
	if err != nil {
		t.Fatalf("Sidecars() error = %v", err)
	}
	if got := sidecars["Acme Model1"].Number("price_eur"); got != 2 {
		t.Errorf("Sidecars()[Acme Model1] price = %v, want 2", got)
	}

	if _, err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	rows, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, r := range rows {
		if r.Sidecar.Number("price_eur") != 2 {
			t.Errorf("%s price_eur = %v, want 2", r.SourceFile, r.Sidecar["price_eur"])
		}
	}
}

func TestStore_EditSidecarErrors(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)
	if _, err := s.Replace(ctx, []measurement.ComparisonRecord{record("Acme Model1", "a.csv", "DUT1", 5)}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	tests := []struct {
		name    string
		source  string
		values  Sidecar
		wantErr error
	}{
		{"unknown field", "a.csv", Sidecar{"colour": "blau"}, ErrUnknownField},
		{"invalid number", "a.csv", Sidecar{"price_eur": "teuer"}, ErrInvalidValue},
		{"invalid text", "a.csv", Sidecar{"comment": 3.0}, ErrInvalidValue},
		{"no matching rows", "missing.csv", Sidecar{"price_eur": 1.0}, ErrNoMatchingRows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.EditSidecar(ctx, tt.source, tt.values)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EditSidecar() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_LegacyTable(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, false)

	_, err := db.ExecContext(ctx, `
		CREATE TABLE comparison_records (
			wandler_key TEXT, folder TEXT, phase TEXT, target_load INTEGER,
			dut_name TEXT, comparison_mode TEXT, source_file TEXT, price_eur REAL
		)`)
	if err != nil {
		t.Fatalf("creating legacy table: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO comparison_records VALUES
		('MBS ASK31 Parallel', 'Parallel', 'L1', 20, 'DUT1', 'device_ref', 'old.csv', 9.5)`)
	if err != nil {
		t.Fatalf("seeding legacy table: %v", err)
	}

	s := New(db, nil)

	rows, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Load() = %d rows, want 1", len(rows))
	}
	if rows[0].BaseType != "MBS ASK31" {
		t.Errorf("derived BaseType = %q, want %q", rows[0].BaseType, "MBS ASK31")
	}
	if rows[0].TargetLoad != 20 || rows[0].Mode != measurement.ModeDeviceRef {
		t.Errorf("row = %+v", rows[0].ComparisonRecord)
	}
	if rows[0].Sidecar.Number("price_eur") != 9.5 || rows[0].Sidecar.Text("comment") != "" {
		t.Errorf("sidecar = %v, want price 9.5 and empty comment", rows[0].Sidecar)
	}

	if _, err := s.Replace(ctx, []measurement.ComparisonRecord{record("MBS ASK31_5R", "new.csv", "DUT1", 5)}); err != nil {
		t.Fatalf("Replace() on legacy table error = %v", err)
	}

	rows, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 1 || rows[0].SourceFile != "new.csv" {
		t.Fatalf("Load() = %+v, want the new record only", rows)
	}
	if rows[0].Sidecar.Number("price_eur") != 9.5 {
		t.Errorf("price_eur = %v, want rescued 9.5", rows[0].Sidecar["price_eur"])
	}
	if rows[0].RefName != "PAC1" {
		t.Errorf("RefName = %q, want column added by upgrade", rows[0].RefName)
	}

	// The legacy price column stays the source of truth after the upgrade.
	if _, err := db.ExecContext(ctx, `UPDATE comparison_records SET price_eur = 11 WHERE source_file = 'new.csv'`); err != nil {
		t.Fatalf("editing price_eur: %v", err)
	}
	if _, err := s.Replace(ctx, []measurement.ComparisonRecord{record("MBS ASK31_5R", "new.csv", "DUT1", 5)}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	rows, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rows[0].Sidecar.Number("price_eur") != 11 {
		t.Errorf("price_eur after re-run = %v, want 11", rows[0].Sidecar["price_eur"])
	}
}

func TestStore_UnreadablePriorStore(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, false)

	if _, err := db.ExecContext(ctx, `CREATE TABLE comparison_records (wandler_key TEXT, price_eur REAL)`); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO comparison_records VALUES ('Acme Model1', 'kaputt')`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	s := New(db, nil)
	logger := &mockLogger{}
	s.SetLogger(logger)

	if _, err := s.Load(ctx); err == nil {
		t.Fatal("Load() error = nil, want scan failure")
	}

	stats, err := s.Replace(ctx, []measurement.ComparisonRecord{record("Acme Model1", "a.csv", "DUT1", 5)})
	if err != nil {
		t.Fatalf("Replace() error = %v, want tolerated prior store", err)
	}
	if stats.RescuedTypes != 0 || stats.Records != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(logger.warns) == 0 {
		t.Error("no warning logged for unreadable prior store")
	}
}

func TestStore_MissingTable(t *testing.T) {
	s := New(openDB(t, false), nil)

	rows, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rows != nil {
		t.Errorf("Load() = %v, want nil", rows)
	}
}

func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)

	recs := []measurement.ComparisonRecord{
		record("Acme Model1", "a.csv", "DUT1", 5),
		record("Other", "b.csv", "DUT1", 5),
	}
	recs[1].Phase = "L2"
	if _, err := s.Replace(ctx, recs); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := s.Records(ctx, Filter{Phase: "L2"})
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 1 || got[0].SourceFile != "b.csv" {
		t.Errorf("Records(L2) = %+v", got)
	}

	got, err = s.Records(ctx, Filter{BaseType: "Acme Model1", Level: 5, Mode: measurement.ModeDeviceRef})
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 1 || got[0].SourceFile != "a.csv" {
		t.Errorf("Records(Acme Model1) = %+v", got)
	}
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := New(openDB(t, true), nil)
	s.now = clock()

	first, err := s.StartRun(ctx)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	first.FilesFound, first.FilesUsed, first.FilesSkipped, first.Records = 3, 2, 1, 12
	if err := s.FinishRun(ctx, first, nil); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	second, err := s.StartRun(ctx)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if err := s.FinishRun(ctx, second, errors.New("nothing to aggregate")); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	runs, err := s.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Runs() = %d, want 2", len(runs))
	}
	if runs[0].ID != second.ID || runs[0].Status != RunFailed || runs[0].Error != "nothing to aggregate" {
		t.Errorf("runs[0] = %+v, want failed second run", runs[0])
	}
	if runs[1].Status != RunSucceeded || runs[1].Records != 12 || runs[1].FilesSkipped != 1 {
		t.Errorf("runs[1] = %+v", runs[1])
	}
	if runs[1].FinishedAt.Before(runs[1].StartedAt) {
		t.Errorf("FinishedAt %v before StartedAt %v", runs[1].FinishedAt, runs[1].StartedAt)
	}

	limited, err := s.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Runs(1) = %d, want 1", len(limited))
	}

	if err := s.FinishRun(ctx, &Run{ID: "unknown"}, nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun(unknown) error = %v, want ErrRunNotFound", err)
	}
}

// =============================================================================
// Sidecar columns
// =============================================================================

func TestStore_SidecarColumns(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, true)
	s := New(db, nil)
	s.now = clock()

	if _, err := s.Replace(ctx, []measurement.ComparisonRecord{record("Acme Model1", "a.csv", "DUT1", 5)}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	present, err := database.TableColumns(ctx, db, "comparison_records")
	if err != nil {
		t.Fatalf("TableColumns() error = %v", err)
	}
	for _, f := range DefaultFields() {
		if !present[f.Name] {
			t.Errorf("column %q missing", f.Name)
		}
	}
	if present["sidecar"] {
		t.Error("unexpected combined sidecar column")
	}

	if _, err := s.EditSidecar(ctx, "a.csv", Sidecar{"price_eur": "12,5", "comment": "Angebot"}); err != nil {
		t.Fatalf("EditSidecar() error = %v", err)
	}

	var (
		price    float64
		comment  string
		editedAt string
		width    sql.NullFloat64
	)
	err = db.QueryRowContext(ctx,
		`SELECT price_eur, comment, sidecar_edited_at, width_mm FROM comparison_records WHERE source_file = 'a.csv'`,
	).Scan(&price, &comment, &editedAt, &width)
	if err != nil {
		t.Fatalf("reading sidecar columns: %v", err)
	}
	if price != 12.5 || comment != "Angebot" {
		t.Errorf("columns = %v / %q, want 12.5 / Angebot", price, comment)
	}
	if editedAt == "" {
		t.Error("sidecar_edited_at not stamped")
	}
	if !width.Valid || width.Float64 != 0 {
		t.Errorf("width_mm = %+v, want untouched default 0", width)
	}
}

func TestStore_ExternalEditRescued(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, true)
	s := New(db, nil)

	first := []measurement.ComparisonRecord{
		record("Acme Model1_8R1", "a.csv", "DUT1", 5.03),
		record("Acme Model1_8R1", "a.csv", "DUT2", 4.98),
		record("Other", "b.csv", "DUT1", 5),
	}
	if _, err := s.Replace(ctx, first); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	// An editor outside this package rewrites only the sidecar columns.
	_, err := db.ExecContext(ctx,
		`UPDATE comparison_records SET price_eur = 7.5, comment = 'extern' WHERE source_file = 'a.csv'`)
	if err != nil {
		t.Fatalf("external edit: %v", err)
	}

	fresh := []measurement.ComparisonRecord{
		record("Acme Model1_8R1", "a.csv", "DUT1", 5.04),
		record("Acme Model1 Dreieck", "a3.csv", "DUT1", 5.01),
		record("Acme Model1_10R Parallel", "a4.csv", "DUT1", 5.02),
		record("Other", "b.csv", "DUT1", 5),
	}
	stats, err := s.Replace(ctx, fresh)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if stats.Restored != 4 {
		t.Errorf("stats.Restored = %d, want 4", stats.Restored)
	}

	rows, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Load() = %d rows, want 4", len(rows))
	}
	for _, r := range rows {
		wantPrice, wantComment := 7.5, "extern"
		if r.BaseType == "Other" {
			wantPrice, wantComment = 0, ""
		}
		if r.Sidecar.Number("price_eur") != wantPrice || r.Sidecar.Text("comment") != wantComment {
			t.Errorf("%s (%s) sidecar = %v, want %v / %q",
				r.SourceFile, r.BaseType, r.Sidecar, wantPrice, wantComment)
		}
	}
}

func TestStore_InvalidFieldName(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		field Field
	}{
		{"record column", Field{Name: "dut_mean", Kind: KindNumber}},
		{"edit stamp", Field{Name: "sidecar_edited_at", Kind: KindText}},
		{"not an identifier", Field{Name: "preis in eur", Kind: KindNumber}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(openDB(t, true), []Field{tt.field})
			_, err := s.Replace(ctx, []measurement.ComparisonRecord{record("Acme Model1", "a.csv", "DUT1", 5)})
			if !errors.Is(err, ErrInvalidField) {
				t.Errorf("Replace() error = %v, want ErrInvalidField", err)
			}
		})
	}
}
