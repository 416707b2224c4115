// Package migrate applies versioned SQL migrations from an embedded
// filesystem. Files are named 000001_name.up.sql / 000001_name.down.sql;
// applied versions are tracked in a table so startup is idempotent.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator loads and applies migrations against one database.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	tableName  string
}

// New creates a migrator tracking applied versions in tableName.
func New(db *sql.DB, tableName string) *Migrator {
	return &Migrator{db: db, tableName: tableName}
}

// LoadFromFS loads all *.sql files under dir in the embedded filesystem.
func (m *Migrator) LoadFromFS(fsys embed.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		parts := strings.SplitN(name, "_", 2)
		if len(parts) != 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", name, err)
		}

		migration, ok := byVersion[version]
		if !ok {
			migration = &Migration{Version: version}
			byVersion[version] = migration
		}
		switch {
		case strings.HasSuffix(parts[1], ".up.sql"):
			migration.Name = strings.TrimSuffix(parts[1], ".up.sql")
			migration.Up = string(content)
		case strings.HasSuffix(parts[1], ".down.sql"):
			migration.Down = string(content)
		}
	}

	for _, migration := range byVersion {
		m.migrations = append(m.migrations, *migration)
	}
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
	return nil
}

// Up applies all pending migrations, each in its own transaction.
func (m *Migrator) Up() error {
	if err := m.ensureTable(); err != nil {
		return err
	}
	current, err := m.currentVersion()
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.ensureTable(); err != nil {
		return err
	}
	current, err := m.currentVersion()
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("no migrations to roll back")
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == current {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %d not found", current)
	}
	if target.Down == "" {
		return fmt.Errorf("migration %d has no down script", current)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("execute rollback SQL: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE version = ?", m.tableName), current); err != nil {
		return fmt.Errorf("remove migration record: %w", err)
	}
	return tx.Commit()
}

// Version returns the current migration version, 0 when none applied.
func (m *Migrator) Version() (int, error) {
	if err := m.ensureTable(); err != nil {
		return 0, err
	}
	return m.currentVersion()
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`, m.tableName))
	if err != nil {
		return fmt.Errorf("create table %s: %w", m.tableName, err)
	}
	return nil
}

func (m *Migrator) currentVersion() (int, error) {
	var version int
	err := m.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.tableName)).Scan(&version)
	return version, err
}

func (m *Migrator) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.Up); err != nil {
		return fmt.Errorf("execute migration SQL: %w", err)
	}
	_, err = tx.Exec(fmt.Sprintf(
		"INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)", m.tableName,
	), migration.Version, migration.Name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
