package sqlitedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 123456789, time.UTC)
	assert.Equal(t, ts, FromTime(Time(ts)))

	local := ts.In(time.FixedZone("X", 3600))
	assert.True(t, ts.Equal(FromTime(Time(local))))
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE t (token TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (token) VALUES ('a')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO t (token) VALUES ('a')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, "t.token"))
	assert.False(t, IsUniqueViolation(err, "t.other"))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestNullFloat(t *testing.T) {
	assert.False(t, NullFloat(nil).Valid)
	v := 1.5
	assert.Equal(t, &v, FloatPtr(NullFloat(&v)))
	assert.Nil(t, FloatPtr(NullFloat(nil)))
}
