package activitylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/geo"
	"github.com/tendant/device-trust/pkg/sqlitedb"
)

// SQLiteRepository implements Repository on a database opened with sqlitedb.Open
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite activity log
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	info, err := json.Marshal(e.DeviceInfo)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode device info: %w", err)
	}
	country, city, tz, lat, lon, source := e.Location.Columns()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO activity_log (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+entryColumns,
		e.ID, e.UserID, string(e.Action), e.DeviceID, string(info), e.IPAddress,
		country, city, tz, sqlitedb.NullFloat(lat), sqlitedb.NullFloat(lon), source,
		sqlitedb.Bool(e.IsSuspicious), e.reasonPtr(), e.Note, sqlitedb.Time(e.Timestamp),
	)
	appended, err := scanSQLiteEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to append activity log entry: %w", err)
	}
	return appended, nil
}

func (r *SQLiteRepository) LatestLoginWithCoordinates(ctx context.Context, userID uuid.UUID, since, until time.Time) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM activity_log
		WHERE user_id = ?
		  AND action = 'login'
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1`,
		userID, sqlitedb.Time(since), sqlitedb.Time(until),
	)
	e, err := scanSQLiteEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("failed to get latest login: %w", err)
	}
	return e, nil
}

func sqlitePlaceholder(int) string { return "?" }

func sqliteUserIDs(ids []uuid.UUID, next func(v interface{}) string) string {
	marks := make([]string, len(ids))
	for i, id := range ids {
		marks[i] = next(id.String())
	}
	return "user_id IN (" + strings.Join(marks, ", ") + ")"
}

func (r *SQLiteRepository) List(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	where, args := f.sqlWhere(sqlitePlaceholder, "LIKE", sqliteUserIDs)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("failed to count activity log entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM activity_log` + where +
		` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	entries, err := r.list(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return Page{}, err
	}
	return NewPage(entries, total, f), nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM activity_log
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, userID, limit)
}

func (r *SQLiteRepository) CountSuspicious(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_log WHERE is_suspicious = 1 AND timestamp >= ?`, sqlitedb.Time(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count suspicious entries: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) ListSuspicious(ctx context.Context, limit int) ([]Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM activity_log
		WHERE is_suspicious = 1
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	return entries, nil
}

func scanSQLiteEntry(row rowScanner) (Entry, error) {
	var e Entry
	var action, info string
	var country, city, tz, source string
	var lat, lon sql.NullFloat64
	var suspicious int
	var reason sql.NullString
	var ts int64

	err := row.Scan(
		&e.ID, &e.UserID, &action, &e.DeviceID, &info, &e.IPAddress,
		&country, &city, &tz, &lat, &lon, &source,
		&suspicious, &reason, &e.Note, &ts,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Action = Action(action)
	if info != "" {
		if err := json.Unmarshal([]byte(info), &e.DeviceInfo); err != nil {
			return Entry{}, fmt.Errorf("failed to decode device info: %w", err)
		}
	}
	e.Location = geo.FromColumns(country, city, tz, sqlitedb.FloatPtr(lat), sqlitedb.FloatPtr(lon), source)
	e.IsSuspicious = suspicious == 1
	e.SuspicionReason = reason.String
	e.Timestamp = sqlitedb.FromTime(ts)
	return e, nil
}
