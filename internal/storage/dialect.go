// Package storage abstracts the SQL fragments that differ between database
// backends, so the aggregation and deduplication queries are written once.
package storage

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect produces backend-specific SQL fragments. All inputs are column
// expressions, never user data.
type Dialect interface {
	Name() string
	// SecondsBetween returns an expression for (later - earlier) in whole seconds.
	SecondsBetween(earlier, later string) string
	// DateOf truncates a timestamp column to its calendar day.
	DateOf(col string) string
	// MonthOf formats a date column as YYYYMM.
	MonthOf(col string) string
	// NullSafeEq compares two nullable columns, treating NULL = NULL as true.
	NullSafeEq(a, b string) string
	// UpsertSet returns a conflict clause over keyCols that updates only col,
	// leaving sibling columns written by other passes untouched.
	UpsertSet(keyCols []string, col string) string
}

// ForDB selects the dialect matching the open connection.
func ForDB(db *gorm.DB) (Dialect, error) {
	switch db.Dialector.Name() {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("storage: unsupported dialect %q", db.Dialector.Name())
	}
}

// SQLite implements Dialect for SQLite.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) SecondsBetween(earlier, later string) string {
	return fmt.Sprintf("(strftime('%%s', %s) - strftime('%%s', %s))", later, earlier)
}

func (SQLite) DateOf(col string) string {
	return fmt.Sprintf("DATE(%s)", col)
}

func (SQLite) MonthOf(col string) string {
	return fmt.Sprintf("strftime('%%Y%%m', %s)", col)
}

func (SQLite) NullSafeEq(a, b string) string {
	return fmt.Sprintf("%s IS %s", a, b)
}

func (SQLite) UpsertSet(keyCols []string, col string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s",
		strings.Join(keyCols, ", "), col, col)
}

// Postgres implements Dialect for PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) SecondsBetween(earlier, later string) string {
	return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", later, earlier)
}

func (Postgres) DateOf(col string) string {
	return fmt.Sprintf("DATE(%s)", col)
}

func (Postgres) MonthOf(col string) string {
	return fmt.Sprintf("to_char(%s, 'YYYYMM')", col)
}

func (Postgres) NullSafeEq(a, b string) string {
	return fmt.Sprintf("%s IS NOT DISTINCT FROM %s", a, b)
}

func (Postgres) UpsertSet(keyCols []string, col string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s",
		strings.Join(keyCols, ", "), col, col)
}
