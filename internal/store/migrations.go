package store

import (
	"database/sql"
	"fmt"

	"github.com/hyperengineering/csab/migrations"
	"github.com/pressly/goose/v3"
)

// Goose dialect names for the supported backends.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var migrationDirs = map[string]string{
	DialectSQLite:   migrations.SQLiteDir,
	DialectPostgres: migrations.PostgresDir,
}

// RunMigrations applies all pending migrations for the given dialect using
// the embedded SQL files from the migrations package.
func RunMigrations(db *sql.DB, dialect string) error {
	dir, ok := migrationDirs[dialect]
	if !ok {
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	// Disable goose's default logging to avoid stdout noise
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
