package config

import (
	"fmt"

	dbutils "github.com/tendant/db-utils/db"
)

// Persistence backends understood by the repository factories.
const (
	PersistencePostgres = "postgres"
	PersistenceSQLite   = "sqlite"
	PersistenceMemory   = "memory"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"TRUST_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"TRUST_PG_PORT" env-default:"5432"`
	Database string `env:"TRUST_PG_DATABASE" env-default:"trust_db"`
	User     string `env:"TRUST_PG_USER" env-default:"trust"`
	Password string `env:"TRUST_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"TRUST_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// ToDbConfig converts the config to a db-utils DbConfig
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

// Validate checks the connection settings
func (d DatabaseConfig) Validate() error {
	return Validate(func() ValidationErrors {
		return CollectErrors(
			RequireNonEmpty("TRUST_PG_HOST", d.Host),
			RequireValidPort("TRUST_PG_PORT", d.Port),
			RequireNonEmpty("TRUST_PG_DATABASE", d.Database),
			RequireNonEmpty("TRUST_PG_USER", d.User),
		)
	})
}

// NewDatabaseConfigFromEnv creates a DatabaseConfig from environment variables
func NewDatabaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     GetEnvOrDefault("TRUST_PG_HOST", "localhost"),
		Port:     GetEnvUint16("TRUST_PG_PORT", 5432),
		Database: GetEnvOrDefault("TRUST_PG_DATABASE", "trust_db"),
		User:     GetEnvOrDefault("TRUST_PG_USER", "trust"),
		Password: GetEnvOrDefault("TRUST_PG_PASSWORD", "pwd"),
		Schema:   GetEnvOrDefault("TRUST_PG_SCHEMA", "public"),
	}
}

// SQLiteConfig holds the on-disk SQLite location
type SQLiteConfig struct {
	Path string `env:"TRUST_SQLITE_PATH" env-default:"device-trust.db"`
}

// ToMigrateURL returns the golang-migrate URL for the database file
func (s SQLiteConfig) ToMigrateURL() string {
	return "sqlite://" + s.Path
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Persistence string `env:"STORE_PERSISTENCE" env-default:"postgres"`
	// AutoMigrate applies embedded migrations at startup
	AutoMigrate bool `env:"STORE_AUTO_MIGRATE" env-default:"true"`
}

// Validate checks the persistence type
func (s StoreConfig) Validate() error {
	return Validate(func() ValidationErrors {
		return CollectErrors(
			RequireOneOf("STORE_PERSISTENCE", s.Persistence,
				[]string{PersistencePostgres, PersistenceSQLite, PersistenceMemory}),
		)
	})
}
