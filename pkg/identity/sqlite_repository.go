package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/sqlitedb"
)

// SQLiteRepository implements Repository on a database opened with sqlitedb.Open
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite user repository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		u.ID, u.Name, NormalizeEmail(u.Email), u.PasswordHash, string(u.Role), u.MaxDevices,
		sqlitedb.Bool(u.IsActive), sqlitedb.Time(u.CreatedAt),
	)
	created, err := scanSQLiteUser(row)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err, "users.email") {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return r.one(ctx, "get", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx, "get", `SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
}

func (r *SQLiteRepository) List(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ?1 = '' OR role = ?1
		ORDER BY created_at DESC`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *SQLiteRepository) Search(ctx context.Context, text string) ([]uuid.UUID, error) {
	// LIKE is case-insensitive for ASCII in SQLite
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM users
		WHERE name LIKE ?1 ESCAPE '\' OR email LIKE ?1 ESCAPE '\'`, likePattern(text))
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) CountByRole(ctx context.Context, role Role, activeOnly bool) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND (is_active = 1 OR ? = 0)`, string(role), sqlitedb.Bool(activeOnly),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	return r.one(ctx, "update", `UPDATE users SET is_active = ?2 WHERE id = ?1 RETURNING `+userColumns, id, sqlitedb.Bool(active))
}

func (r *SQLiteRepository) SetMaxDevices(ctx context.Context, id uuid.UUID, maxDevices int) (User, error) {
	return r.one(ctx, "update", `UPDATE users SET max_devices = ?2 WHERE id = ?1 RETURNING `+userColumns, id, maxDevices)
}

func (r *SQLiteRepository) one(ctx context.Context, verb, query string, args ...interface{}) (User, error) {
	u, err := scanSQLiteUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to %s user: %w", verb, err)
	}
	return u, nil
}

func scanSQLiteUser(row rowScanner) (User, error) {
	var u User
	var role string
	var active int
	var created int64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.MaxDevices, &active, &created)
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	u.IsActive = active == 1
	u.CreatedAt = sqlitedb.FromTime(created)
	return u, nil
}
