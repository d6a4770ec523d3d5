package activitylog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations/postgres", "000001_init.up.sql")),
		postgres.WithDatabase("trust_db"),
		postgres.WithUsername("trust"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}

	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	runRepositoryContract(t, func(t *testing.T) (Repository, func(t *testing.T) uuid.UUID) {
		_, err := pool.Exec(context.Background(), `TRUNCATE sessions, activity_log, users`)
		require.NoError(t, err)

		newUser := func(t *testing.T) uuid.UUID {
			id := uuid.New()
			_, err := pool.Exec(context.Background(),
				`INSERT INTO users (id, name, email, password_hash) VALUES ($1, $2, $3, $4)`,
				id, "Test User", id.String()+"@example.com", "x",
			)
			require.NoError(t, err)
			return id
		}
		return NewPostgresRepository(pool), newUser
	})
}
