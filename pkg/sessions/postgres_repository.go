package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// NewPostgresRepository creates a new PostgreSQL session repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `
	id, user_id, device_id, device_info, session_token, ip_address,
	country, city, timezone, latitude, longitude, location_source,
	is_active, last_activity, expires_at, created_at`

// Create inserts the session; the partial unique index on (user_id, device_id)
// turns a second active row for the same device into an update.
func (r *PostgresRepository) Create(ctx context.Context, s Session) (Session, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id, device_id) WHERE is_active DO UPDATE SET
			id = EXCLUDED.id,
			device_info = EXCLUDED.device_info,
			session_token = EXCLUDED.session_token,
			ip_address = EXCLUDED.ip_address,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			timezone = EXCLUDED.timezone,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			location_source = EXCLUDED.location_source,
			last_activity = EXCLUDED.last_activity,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
		RETURNING ` + sessionColumns

	row := r.db.QueryRow(ctx, query,
		s.ID, s.UserID, s.DeviceID, info, s.SessionToken, s.IPAddress,
		country, city, tz, lat, lon, source,
		s.IsActive, s.LastActivity, s.ExpiresAt, s.CreatedAt,
	)
	created, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "sessions_session_token_key" {
			return Session{}, ErrDuplicateToken
		}
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return r.findOne(ctx, "failed to get session", query, id)
}

func (r *PostgresRepository) FindLiveByToken(ctx context.Context, token string, now time.Time) (Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE session_token = $1 AND is_active AND expires_at > $2`
	return r.findOne(ctx, "failed to get session by token", query, token, now)
}

func (r *PostgresRepository) FindLiveByDevice(ctx context.Context, userID uuid.UUID, deviceID string, now time.Time) (Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND device_id = $2 AND is_active AND expires_at > $3
		ORDER BY last_activity DESC
		LIMIT 1`
	return r.findOne(ctx, "failed to get session by device", query, userID, deviceID, now)
}

func (r *PostgresRepository) findOne(ctx context.Context, msg, query string, args ...interface{}) (Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("%s: %w", msg, err)
	}
	return s, nil
}

func (r *PostgresRepository) CountLive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND is_active AND expires_at > $2`,
		userID, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count live sessions: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) CountAllLive(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE is_active AND expires_at > $1`, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count live sessions: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) CountLiveByUser(ctx context.Context, now time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, COUNT(*)
		FROM sessions
		WHERE is_active AND expires_at > $1
		GROUP BY user_id`, now)
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

func (r *PostgresRepository) ListLive(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY last_activity DESC`
	return r.list(ctx, query, userID, now)
}

func (r *PostgresRepository) ListAllLive(ctx context.Context, now time.Time) ([]Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE is_active AND expires_at > $1
		ORDER BY last_activity DESC`
	return r.list(ctx, query, now)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...interface{}) ([]Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	result := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
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

func (r *PostgresRepository) Refresh(ctx context.Context, id uuid.UUID, lastActivity, expiresAt time.Time, loc *geo.Location) (Session, error) {
	var query string
	args := []interface{}{id, lastActivity, expiresAt}
	if loc == nil {
		query = `UPDATE sessions SET last_activity = $2, expires_at = $3
			WHERE id = $1 AND is_active
			RETURNING ` + sessionColumns
	} else {
		country, city, tz, lat, lon, source := loc.Columns()
		query = `UPDATE sessions SET last_activity = $2, expires_at = $3,
				country = $4, city = $5, timezone = $6, latitude = $7, longitude = $8, location_source = $9
			WHERE id = $1 AND is_active
			RETURNING ` + sessionColumns
		args = append(args, country, city, tz, lat, lon, source)
	}
	return r.findOne(ctx, "failed to refresh session", query, args...)
}

func (r *PostgresRepository) Deactivate(ctx context.Context, token string, now time.Time) (Session, bool, error) {
	query := `UPDATE sessions SET is_active = false
		WHERE session_token = $1 AND is_active AND expires_at > $2
		RETURNING ` + sessionColumns
	s, err := r.findOne(ctx, "failed to deactivate session", query, token, now)
	if errors.Is(err, ErrNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET is_active = false WHERE user_id = $1 AND is_active AND expires_at > $2`,
		userID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE NOT is_active OR expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	var info []byte
	var country, city, tz, source string
	var lat, lon *float64

	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceID, &info, &s.SessionToken, &s.IPAddress,
		&country, &city, &tz, &lat, &lon, &source,
		&s.IsActive, &s.LastActivity, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return Session{}, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &s.DeviceInfo); err != nil {
			return Session{}, fmt.Errorf("failed to decode device info: %w", err)
		}
	}
	s.Location = geo.FromColumns(country, city, tz, lat, lon, source)
	s.LastActivity = s.LastActivity.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
