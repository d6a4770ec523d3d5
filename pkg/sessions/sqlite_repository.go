package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/geo"
	"github.com/tendant/device-trust/pkg/sqlitedb"
)

// SQLiteRepository implements Repository on a SQLite database opened with
// sqlitedb.Open. Timestamps are stored as UTC nanoseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite session repository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepository) Create(ctx context.Context, s Session) (Session, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	info, err := json.Marshal(s.DeviceInfo)
	if err != nil {
		return Session{}, fmt.Errorf("failed to encode device info: %w", err)
	}
	country, city, tz, lat, lon, source := s.Location.Columns()

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) WHERE is_active = 1 DO UPDATE SET
			id = excluded.id,
			device_info = excluded.device_info,
			session_token = excluded.session_token,
			ip_address = excluded.ip_address,
			country = excluded.country,
			city = excluded.city,
			timezone = excluded.timezone,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			location_source = excluded.location_source,
			last_activity = excluded.last_activity,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
		RETURNING ` + sessionColumns

	row := r.db.QueryRowContext(ctx, query,
		s.ID, s.UserID, s.DeviceID, string(info), s.SessionToken, s.IPAddress,
		country, city, tz, sqlitedb.NullFloat(lat), sqlitedb.NullFloat(lon), source,
		sqlitedb.Bool(s.IsActive), sqlitedb.Time(s.LastActivity), sqlitedb.Time(s.ExpiresAt), sqlitedb.Time(s.CreatedAt),
	)
	created, err := scanSQLiteSession(row)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err, "sessions.session_token") {
			return Session{}, ErrDuplicateToken
		}
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id uuid.UUID) (Session, error) {
	return r.findOne(ctx, "failed to get session",
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
}

func (r *SQLiteRepository) FindLiveByToken(ctx context.Context, token string, now time.Time) (Session, error) {
	return r.findOne(ctx, "failed to get session by token",
		`SELECT `+sessionColumns+` FROM sessions
		WHERE session_token = ? AND is_active = 1 AND expires_at > ?`,
		token, sqlitedb.Time(now))
}

func (r *SQLiteRepository) FindLiveByDevice(ctx context.Context, userID uuid.UUID, deviceID string, now time.Time) (Session, error) {
	return r.findOne(ctx, "failed to get session by device",
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND device_id = ? AND is_active = 1 AND expires_at > ?
		ORDER BY last_activity DESC
		LIMIT 1`,
		userID, deviceID, sqlitedb.Time(now))
}

func (r *SQLiteRepository) findOne(ctx context.Context, msg, query string, args ...interface{}) (Session, error) {
	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("%s: %w", msg, err)
	}
	return s, nil
}

func (r *SQLiteRepository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count live sessions: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) CountLive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND is_active = 1 AND expires_at > ?`,
		userID, sqlitedb.Time(now))
}

func (r *SQLiteRepository) CountAllLive(ctx context.Context, now time.Time) (int, error) {
	return r.count(ctx,
		`SELECT COUNT(*) FROM sessions WHERE is_active = 1 AND expires_at > ?`,
		sqlitedb.Time(now))
}

func (r *SQLiteRepository) CountLiveByUser(ctx context.Context, now time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*)
		FROM sessions
		WHERE is_active = 1 AND expires_at > ?
		GROUP BY user_id`, sqlitedb.Time(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count live sessions by user: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var userID uuid.UUID
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) ListLive(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND is_active = 1 AND expires_at > ?
		ORDER BY last_activity DESC`,
		userID, sqlitedb.Time(now))
}

func (r *SQLiteRepository) ListAllLive(ctx context.Context, now time.Time) ([]Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE is_active = 1 AND expires_at > ?
		ORDER BY last_activity DESC`,
		sqlitedb.Time(now))
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...interface{}) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	result := []Session{}
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Refresh(ctx context.Context, id uuid.UUID, lastActivity, expiresAt time.Time, loc *geo.Location) (Session, error) {
	if loc == nil {
		return r.findOne(ctx, "failed to refresh session",
			`UPDATE sessions SET last_activity = ?, expires_at = ?
			WHERE id = ? AND is_active = 1
			RETURNING `+sessionColumns,
			sqlitedb.Time(lastActivity), sqlitedb.Time(expiresAt), id)
	}
	country, city, tz, lat, lon, source := loc.Columns()
	return r.findOne(ctx, "failed to refresh session",
		`UPDATE sessions SET last_activity = ?, expires_at = ?,
			country = ?, city = ?, timezone = ?, latitude = ?, longitude = ?, location_source = ?
		WHERE id = ? AND is_active = 1
		RETURNING `+sessionColumns,
		sqlitedb.Time(lastActivity), sqlitedb.Time(expiresAt),
		country, city, tz, sqlitedb.NullFloat(lat), sqlitedb.NullFloat(lon), source, id)
}

func (r *SQLiteRepository) Deactivate(ctx context.Context, token string, now time.Time) (Session, bool, error) {
	s, err := r.findOne(ctx, "failed to deactivate session",
		`UPDATE sessions SET is_active = 0
		WHERE session_token = ? AND is_active = 1 AND expires_at > ?
		RETURNING `+sessionColumns,
		token, sqlitedb.Time(now))
	if errors.Is(err, ErrNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *SQLiteRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1 AND expires_at > ?`,
		userID, sqlitedb.Time(now))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE is_active = 0 OR expires_at <= ?`, sqlitedb.Time(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(n), nil
}

func scanSQLiteSession(row rowScanner) (Session, error) {
	var s Session
	var info string
	var country, city, tz, source string
	var lat, lon sql.NullFloat64
	var active int
	var lastActivity, expiresAt, createdAt int64

	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceID, &info, &s.SessionToken, &s.IPAddress,
		&country, &city, &tz, &lat, &lon, &source,
		&active, &lastActivity, &expiresAt, &createdAt,
	)
	if err != nil {
		return Session{}, err
	}
	if info != "" {
		if err := json.Unmarshal([]byte(info), &s.DeviceInfo); err != nil {
			return Session{}, fmt.Errorf("failed to decode device info: %w", err)
		}
	}
	s.Location = geo.FromColumns(country, city, tz, sqlitedb.FloatPtr(lat), sqlitedb.FloatPtr(lon), source)
	s.IsActive = active == 1
	s.LastActivity = sqlitedb.FromTime(lastActivity)
	s.ExpiresAt = sqlitedb.FromTime(expiresAt)
	s.CreatedAt = sqlitedb.FromTime(createdAt)
	return s, nil
}
