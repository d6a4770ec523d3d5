package activitylog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tendant/device-trust/pkg/geo"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL activity log
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `
	id, user_id, action, device_id, device_info, ip_address,
	country, city, timezone, latitude, longitude, location_source,
	is_suspicious, suspicion_reason, note, timestamp`

func (r *PostgresRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	info, err := json.Marshal(e.DeviceInfo)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode device info: %w", err)
	}
	country, city, tz, lat, lon, source := e.Location.Columns()

	row := r.db.QueryRow(ctx, `
		INSERT INTO activity_log (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+entryColumns,
		e.ID, e.UserID, string(e.Action), e.DeviceID, info, e.IPAddress,
		country, city, tz, lat, lon, source,
		e.IsSuspicious, e.reasonPtr(), e.Note, e.Timestamp,
	)
	appended, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to append activity log entry: %w", err)
	}
	return appended, nil
}

func (r *PostgresRepository) LatestLoginWithCoordinates(ctx context.Context, userID uuid.UUID, since, until time.Time) (Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM activity_log
		WHERE user_id = $1
		  AND action = 'login'
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		  AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT 1`,
		userID, since, until,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("failed to get latest login: %w", err)
	}
	return e, nil
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func pgUserIDs(ids []uuid.UUID, next func(v interface{}) string) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return "user_id = ANY(" + next(strs) + "::uuid[])"
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	where, args := f.sqlWhere(pgPlaceholder, "ILIKE", pgUserIDs)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("failed to count activity log entries: %w", err)
	}

	n := len(args)
	query := `SELECT ` + entryColumns + ` FROM activity_log` + where +
		` ORDER BY timestamp DESC LIMIT ` + pgPlaceholder(n+1) + ` OFFSET ` + pgPlaceholder(n+2)
	entries, err := r.list(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return Page{}, err
	}
	return NewPage(entries, total, f), nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM activity_log
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, userID, limit)
}

func (r *PostgresRepository) CountSuspicious(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_log WHERE is_suspicious AND timestamp >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count suspicious entries: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ListSuspicious(ctx context.Context, limit int) ([]Entry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM activity_log
		WHERE is_suspicious
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
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

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var action string
	var info []byte
	var country, city, tz, source string
	var lat, lon *float64
	var reason *string

	err := row.Scan(
		&e.ID, &e.UserID, &action, &e.DeviceID, &info, &e.IPAddress,
		&country, &city, &tz, &lat, &lon, &source,
		&e.IsSuspicious, &reason, &e.Note, &e.Timestamp,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Action = Action(action)
	if len(info) > 0 {
		if err := json.Unmarshal(info, &e.DeviceInfo); err != nil {
			return Entry{}, fmt.Errorf("failed to decode device info: %w", err)
		}
	}
	e.Location = geo.FromColumns(country, city, tz, lat, lon, source)
	if reason != nil {
		e.SuspicionReason = strings.TrimSpace(*reason)
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
