package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/dbmigrate"
)

type Config struct {
	Store    config.StoreConfig
	Database config.DatabaseConfig
	SQLite   config.SQLiteConfig
}

// databaseURL picks the migrate URL for the configured persistence
func (c Config) databaseURL() (string, error) {
	switch c.Store.Persistence {
	case config.PersistencePostgres:
		return c.Database.ToDatabaseURL(), nil
	case config.PersistenceSQLite:
		return c.SQLite.ToMigrateURL(), nil
	default:
		return "", fmt.Errorf("persistence %q has no migrations", c.Store.Persistence)
	}
}

func main() {
	direction := flag.String("direction", dbmigrate.DirectionUp, "Migration direction: up or down")
	url := flag.String("url", "", "Database URL (postgres://... or sqlite://...); defaults to the STORE_PERSISTENCE settings")
	flag.Parse()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Error("Failed to load .env file", "error", err)
		}
	}

	databaseURL := *url
	if databaseURL == "" {
		cfg := Config{}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			slog.Error("Failed to read configuration", "error", err)
			os.Exit(1)
		}
		var err error
		if databaseURL, err = cfg.databaseURL(); err != nil {
			slog.Error("Cannot determine database", "error", err)
			os.Exit(1)
		}
	}

	if err := dbmigrate.Run(databaseURL, *direction); err != nil {
		slog.Error("Migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}
	slog.Info("Migration complete", "direction", *direction)
}
