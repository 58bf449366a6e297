package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/database"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
)

// Table names.
const (
	recordsTable = "comparison_records"
	runsTable    = "aggregation_runs"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// identifier restricts sidecar field names, which become column names.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB is the connection subset used by Store.
// Satisfied by *sql.DB and *database.DB.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Logger is the logging subset used by Store.
type Logger interface {
	Warn(msg string, args ...any)
}

// Store is the handle on the persisted comparison table.
//
// Thread Safety:
//   - Replace and EditSidecar hold an internal mutex, so merges and operator
//     edits through the same Store never interleave.
//   - Load, Records, Sidecars and Runs may run concurrently with them and see
//     either the old or the new table, never a mix.
type Store struct {
	db     DB
	fields []Field
	logger Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Store on db with the given sidecar fields. Nil fields take
// DefaultFields.
func New(db DB, fields []Field) *Store {
	if fields == nil {
		fields = DefaultFields()
	}
	return &Store{db: db, fields: fields, now: time.Now}
}

// SetLogger sets the logger used for tolerated failures.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Fields returns the configured sidecar fields.
func (s *Store) Fields() []Field {
	return s.fields
}

// column maps one table column to a Row field.
type column struct {
	name  string
	ddl   string
	field func(r *Row) any
}

// recordColumns in table order. ddl is used to add a column missing from an
// older table.
var recordColumns = []column{
	{"wandler_key", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.WandlerKey }},
	{"base_type", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.BaseType }},
	{"folder", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.Folder }},
	{"phase", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.Phase }},
	{"target_load", "INTEGER NOT NULL DEFAULT 0", func(r *Row) any { return &r.TargetLoad }},
	{"rated_current", "REAL NOT NULL DEFAULT 0", func(r *Row) any { return &r.RatedCurrent }},
	{"manufacturer", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.Manufacturer }},
	{"burden", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.Burden }},
	{"dut_name", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.DUTName }},
	{"dut_mean", "REAL NOT NULL DEFAULT 0", func(r *Row) any { return &r.DUTMean }},
	{"dut_std", "REAL NOT NULL DEFAULT 0", func(r *Row) any { return &r.DUTStd }},
	{"ref_name", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.RefName }},
	{"ref_mean", "REAL NOT NULL DEFAULT 0", func(r *Row) any { return &r.RefMean }},
	{"ref_std", "REAL NOT NULL DEFAULT 0", func(r *Row) any { return &r.RefStd }},
	{"comparison_mode", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.Mode }},
	{"source_file", "TEXT NOT NULL DEFAULT ''", func(r *Row) any { return &r.SourceFile }},
}

// editedAtColumn stamps the last operator edit of a row's sidecar columns.
const editedAtColumn = "sidecar_edited_at"

// reserved are column names a sidecar field may not take.
var reserved = func() map[string]bool {
	m := map[string]bool{"id": true, "rowid": true, editedAtColumn: true}
	for _, c := range recordColumns {
		m[c.name] = true
	}
	return m
}()

// checkFields rejects sidecar fields that cannot be stored as their own column.
func checkFields(fields []Field) error {
	for _, f := range fields {
		if !identifier.MatchString(f.Name) || reserved[strings.ToLower(f.Name)] {
			return fmt.Errorf("%w: %q", ErrInvalidField, f.Name)
		}
	}
	return nil
}

// quote returns a sidecar column name ready for interpolation.
func quote(name string) string {
	return `"` + name + `"`
}

// Load reads all rows of the store.
//
// Rows are ordered by sidecar edit time, never-edited rows first, then by
// insertion order, so the most recently edited row of a base type comes last.
// Columns missing from the table are defaulted, and so are NULL sidecar cells;
// a missing table yields no rows. A base_type column that is absent or empty
// is derived from the wandler key.
func (s *Store) Load(ctx context.Context) ([]Row, error) {
	present, err := database.TableColumns(ctx, s.db, recordsTable)
	if err != nil {
		return nil, err
	}
	if len(present) == 0 {
		return nil, nil
	}

	var (
		selected []string
		cols     []column
		fields   []Field
	)
	for _, c := range recordColumns {
		if present[c.name] {
			selected = append(selected, c.name)
			cols = append(cols, c)
		}
	}
	for _, f := range s.fields {
		if present[f.Name] && identifier.MatchString(f.Name) {
			selected = append(selected, quote(f.Name))
			fields = append(fields, f)
		}
	}
	hasEdited := present[editedAtColumn]
	if hasEdited {
		selected = append(selected, editedAtColumn)
	}
	if len(selected) == 0 {
		return nil, nil
	}

	order := "rowid"
	if hasEdited {
		order = editedAtColumn + ", rowid"
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(selected, ", "), recordsTable, order) //nolint:gosec // Column names are checked identifiers
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", recordsTable, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		dests := make([]any, 0, len(selected))
		for _, c := range cols {
			dests = append(dests, scanTarget(c.field(&Row{})))
		}
		for _, f := range fields {
			if f.Kind == KindText {
				dests = append(dests, new(sql.NullString))
			} else {
				dests = append(dests, new(sql.NullFloat64))
			}
		}
		var editedAt sql.NullString
		if hasEdited {
			dests = append(dests, &editedAt)
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", recordsTable, err)
		}

		var r Row
		for i, c := range cols {
			assign(c.field(&r), dests[i])
		}
		if r.BaseType == "" {
			r.BaseType = measurement.BaseType(r.WandlerKey)
		}

		r.Sidecar = DefaultSidecar(s.fields)
		for i, f := range fields {
			switch v := dests[len(cols)+i].(type) {
			case *sql.NullString:
				if v.Valid {
					r.Sidecar[f.Name] = v.String
				}
			case *sql.NullFloat64:
				if v.Valid {
					r.Sidecar[f.Name] = v.Float64
				}
			}
		}
		if editedAt.Valid && editedAt.String != "" {
			if t, err := time.Parse(timeLayout, editedAt.String); err == nil {
				r.EditedAt = t
			}
		}

		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", recordsTable, err)
	}

	return out, nil
}

// scanTarget returns a nullable scan destination for a Row field pointer.
func scanTarget(field any) any {
	switch field.(type) {
	case *float64, *int:
		return new(sql.NullFloat64)
	default:
		return new(sql.NullString)
	}
}

// assign copies a scanned nullable value into the Row field pointer.
func assign(field, dest any) {
	switch p := field.(type) {
	case *string:
		*p = dest.(*sql.NullString).String
	case *measurement.Mode:
		*p = measurement.Mode(dest.(*sql.NullString).String)
	case *float64:
		*p = dest.(*sql.NullFloat64).Float64
	case *int:
		*p = int(math.Round(dest.(*sql.NullFloat64).Float64))
	}
}

// Persist replaces the whole table with rows in a single transaction.
// Record and sidecar columns missing from an older table are added first.
func (s *Store) Persist(ctx context.Context, rows []Row) error {
	if err := checkFields(s.fields); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := s.upgrade(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+recordsTable); err != nil {
		return fmt.Errorf("clearing %s: %w", recordsTable, err)
	}

	names := make([]string, 0, len(recordColumns)+len(s.fields)+1)
	for _, c := range recordColumns {
		names = append(names, c.name)
	}
	for _, f := range s.fields {
		names = append(names, quote(f.Name))
	}
	names = append(names, editedAtColumn)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // Column names are checked identifiers
		recordsTable, strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		r := &rows[i]
		args := make([]any, 0, len(names))
		for _, c := range recordColumns {
			args = append(args, value(c.field(r)))
		}
		sc := s.normalize(r.Sidecar)
		for _, f := range s.fields {
			args = append(args, sc[f.Name])
		}
		args = append(args, formatTime(r.EditedAt))

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", recordsTable, err)
	}
	return nil
}

// value dereferences a Row field pointer for use as a query argument.
func value(field any) any {
	switch p := field.(type) {
	case *string:
		return *p
	case *measurement.Mode:
		return string(*p)
	case *float64:
		return *p
	case *int:
		return *p
	default:
		return nil
	}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// normalize keeps only configured fields, defaulting missing or invalid values.
func (s *Store) normalize(sc Sidecar) Sidecar {
	out := DefaultSidecar(s.fields)
	restore(out, sc, s.fields)
	return out
}

// upgrade adds record and sidecar columns missing from an older table.
// Added sidecar columns are nullable so untouched cells read as defaults.
func (s *Store) upgrade(ctx context.Context, tx *sql.Tx) error {
	present, err := database.TableColumns(ctx, tx, recordsTable)
	if err != nil {
		return err
	}
	if len(present) == 0 {
		return fmt.Errorf("table %s does not exist; run migrations first", recordsTable)
	}

	add := func(name, ddl string) error {
		if present[name] {
			return nil
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", recordsTable, quote(name), ddl)); err != nil {
			return fmt.Errorf("adding column %s: %w", name, err)
		}
		return nil
	}

	for _, c := range recordColumns {
		if err := add(c.name, c.ddl); err != nil {
			return err
		}
	}
	for _, f := range s.fields {
		if err := add(f.Name, f.columnType()); err != nil {
			return err
		}
	}
	return add(editedAtColumn, "TEXT")
}

// Replace merges records into the store: load the prior rows, Merge, Persist.
//
// An unreadable prior store is logged and treated as empty so aggregation
// never fails on a corrupt store. Concurrent calls are serialised.
func (s *Store) Replace(ctx context.Context, records []measurement.ComparisonRecord) (MergeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, err := s.Load(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("prior store unreadable, starting without sidecar data", "error", err)
		}
		prior = nil
	}

	rows, stats := Merge(records, prior, s.fields)
	if err := s.Persist(ctx, rows); err != nil {
		return stats, err
	}
	return stats, nil
}

// EditSidecar sets sidecar values on every row whose source_file equals
// sourceFile and stamps the edit time. Only the named sidecar columns change,
// the same partial update an external editor applies to the table.
//
// Returns the number of rows changed, ErrUnknownField or ErrInvalidValue for
// bad input, and ErrNoMatchingRows when no row has that source file.
func (s *Store) EditSidecar(ctx context.Context, sourceFile string, values Sidecar) (int64, error) {
	if err := checkFields(s.fields); err != nil {
		return 0, err
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		f, ok := s.field(name)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		c, err := f.Coerce(values[name])
		if err != nil {
			return 0, err
		}
		sets = append(sets, quote(name)+" = ?")
		args = append(args, c)
	}
	sets = append(sets, editedAtColumn+" = ?")
	args = append(args, formatTime(s.now()), sourceFile)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := s.upgrade(ctx, tx); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE source_file = ?", //nolint:gosec // Column names are checked identifiers
		recordsTable, strings.Join(sets, ", ")), args...)
	if err != nil {
		return 0, fmt.Errorf("updating rows of %s: %w", sourceFile, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", sourceFile, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoMatchingRows, sourceFile)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing sidecar edit: %w", err)
	}
	return n, nil
}

func (s *Store) field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Records returns the rows passing filter, in Load order.
func (s *Store) Records(ctx context.Context, filter Filter) ([]Row, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(all))
	for _, r := range all {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Sidecars returns the current sidecar of every base type, as the next
// Replace would rescue it.
func (s *Store) Sidecars(ctx context.Context) (map[string]Sidecar, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Sidecar)
	for _, r := range all {
		out[r.BaseType] = r.Sidecar
	}
	return out, nil
}
