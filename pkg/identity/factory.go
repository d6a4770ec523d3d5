package identity

import (
	"database/sql"
	"fmt"

	"github.com/tendant/device-trust/pkg/config"
)

// RepositoryConfig carries the handle the selected persistence needs
type RepositoryConfig struct {
	// Postgres is required for the postgres persistence
	Postgres DBTX
	// SQLite is required for the sqlite persistence
	SQLite *sql.DB
}

// NewRepository creates a user repository for the persistence type
func NewRepository(persistence string, cfg RepositoryConfig) (Repository, error) {
	switch persistence {
	case config.PersistencePostgres, "postgresql":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepository(cfg.Postgres), nil
	case config.PersistenceSQLite:
		if cfg.SQLite == nil {
			return nil, fmt.Errorf("db required for sqlite repository")
		}
		return NewSQLiteRepository(cfg.SQLite), nil
	case config.PersistenceMemory:
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, sqlite, memory)", persistence)
	}
}
