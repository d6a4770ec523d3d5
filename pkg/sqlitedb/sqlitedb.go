// Package sqlitedb opens SQLite databases with the pure Go modernc driver and
// converts values the stores keep in SQLite-specific forms.
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Open opens the database at path. SQLite allows one writer at a time, so
// the pool is limited to a single connection.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Timestamps are stored as INTEGER nanoseconds since the epoch, UTC.

func Time(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func FromTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Bool maps to the 0/1 INTEGER SQLite uses for booleans
func Bool(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NullFloat converts an optional coordinate for a query argument
func NullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// FloatPtr converts a scanned nullable coordinate back
func FloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure,
// optionally on the given column ("table.column").
func IsUniqueViolation(err error, column string) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return column == "" || strings.Contains(sqliteErr.Error(), column)
}
