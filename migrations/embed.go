// Package migrations embeds the goose SQL migrations for every supported
// database. Each dialect lives in its own directory.
package migrations

import "embed"

// FS holds the migration files. Use SQLiteDir or PostgresDir as the goose
// directory.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
