package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/identra/identra/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending schema migrations.
func RunMigrations(db *sql.DB) error {
	m := migrate.New(db, "schema_migrations")

	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
