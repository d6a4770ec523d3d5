// Package migrations embeds the schema migrations for each supported store.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Directories inside FS
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
