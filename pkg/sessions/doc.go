// Package sessions stores the device-bound sessions of the trust engine.
//
// A Session is live while it is active and not yet expired. At most one
// active row exists per (user, device): Create replaces an earlier active
// row for the same pair, and the PostgreSQL and SQLite schemas back that
// with a partial unique index.
//
// # Stores
//
//	repo := sessions.NewInMemRepository()          // tests, demo binary
//	repo := sessions.NewPostgresRepository(pool)   // *pgxpool.Pool or pgx.Tx
//	repo := sessions.NewSQLiteRepository(db)       // *sql.DB from sqlitedb.Open
//
// or through the factory:
//
//	repo, err := sessions.NewRepository(cfg.Store.Persistence, sessions.RepositoryConfig{Postgres: pool})
//
// Stores never read the clock; callers pass now so expiry is decided by a
// single injected clock.
//
// # Tokens
//
// NewToken returns 32 bytes from crypto/rand, hex encoded. Tokens are the
// durable handle of a session and are never logged.
package sessions
