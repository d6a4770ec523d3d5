package activitylog

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tendant/device-trust/pkg/dbmigrate"
	"github.com/tendant/device-trust/pkg/sqlitedb"
)

func setupSQLiteDatabase(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.db")
	require.NoError(t, dbmigrate.Run("sqlite://"+path, dbmigrate.DirectionUp))

	db, err := sqlitedb.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) (Repository, func(t *testing.T) uuid.UUID) {
		db := setupSQLiteDatabase(t)
		newUser := func(t *testing.T) uuid.UUID {
			id := uuid.New()
			_, err := db.Exec(
				`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
				id, "Test User", id.String()+"@example.com", "x", sqlitedb.Time(time.Now()),
			)
			require.NoError(t, err)
			return id
		}
		return NewSQLiteRepository(db), newUser
	})
}
