// Package dbmigrate applies the embedded schema migrations with golang-migrate.
package dbmigrate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tendant/device-trust/migrations"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// SourceDir picks the migration directory for a database URL:
// postgres:// and postgresql:// use the PostgreSQL set, sqlite:// the SQLite set.
func SourceDir(databaseURL string) (string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return migrations.PostgresDir, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return migrations.SQLiteDir, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme: %q", scheme(databaseURL))
	}
}

// Run applies migrations in direction ("up" or "down"). Being already at the
// target version is not an error.
func Run(databaseURL, direction string) error {
	if databaseURL == "" {
		return errors.New("database url is not set")
	}
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	dir, err := SourceDir(databaseURL)
	if err != nil {
		return err
	}

	sourceDriver, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, databaseURL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case DirectionUp:
		err = m.Up()
	case DirectionDown:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("Migrations already current", "direction", direction, "source", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate version: %w", verr)
	}
	slog.Info("Migrations applied", "direction", direction, "source", dir, "version", version, "dirty", dirty)
	return nil
}

func scheme(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i]
	}
	return u
}
