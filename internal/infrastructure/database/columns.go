package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// identifierPattern restricts table names interpolated into PRAGMA statements.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Querier is satisfied by *sql.DB, *sql.Tx and *DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableColumns returns the set of column names present in table.
//
// Stores written by older releases may lack columns added later, so readers
// check presence before selecting. A missing table yields an empty set.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - q: Connection or transaction to query
//   - table: Plain table identifier
//
// Returns:
//   - map[string]bool: Column names present in the table
//   - error: If the table name is invalid or the query fails
func TableColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns of %s: %w", table, err)
	}

	return cols, nil
}
