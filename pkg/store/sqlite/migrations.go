// Package sqlite is the concrete Store (pkg/store) implementation this
// module ships so the gateway runs standalone on a desktop: ServerDefinition
// and AuditRecord persistence backed by modernc.org/sqlite (cgo-free) with
// embedded pressly/goose migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrate applies every pending migration embedded in migrationsFS.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("sqlite: applying migrations: %w", err)
	}
	return nil
}
