// Package database provides tenant instantiation
package database

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
)

// TableCreator handles the creation of the database schema for a new tenant.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tenant's database tables and indexes.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *database.DB) error {
	tables, indexes := SchemaFor(db.Dialect)

	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// SchemaFor returns the table and index statements for a dialect.
func SchemaFor(dialect database.Dialect) ([]string, []string) {
	if dialect == database.DialectPostgres {
		return postgresTables, indexes
	}
	return sqliteTables, indexes
}

var sqliteTables = []string{
	`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, is_staff BOOLEAN NOT NULL DEFAULT 0, created_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS split_tests (id INTEGER PRIMARY KEY AUTOINCREMENT, uuid TEXT NOT NULL UNIQUE, slug TEXT NOT NULL, name TEXT NOT NULL, is_active BOOLEAN NOT NULL DEFAULT 1, site_id TEXT NOT NULL, created_at TEXT NOT NULL, modified_at TEXT NOT NULL, UNIQUE(site_id, slug))`,
	`CREATE TABLE IF NOT EXISTS cohorts (id INTEGER PRIMARY KEY AUTOINCREMENT, uuid TEXT NOT NULL UNIQUE, slug TEXT NOT NULL, name TEXT NOT NULL, is_active BOOLEAN NOT NULL DEFAULT 1, weight INTEGER NOT NULL DEFAULT 1 CHECK (weight >= 0), split_test_id INTEGER NOT NULL REFERENCES split_tests(id) ON DELETE CASCADE, created_at TEXT NOT NULL, modified_at TEXT NOT NULL, UNIQUE(split_test_id, slug))`,
	`CREATE TABLE IF NOT EXISTS assignments (id INTEGER PRIMARY KEY AUTOINCREMENT, cohort_id INTEGER NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE, user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE, assigned_at TEXT NOT NULL, UNIQUE(cohort_id, user_id))`,
}

var postgresTables = []string{
	`CREATE TABLE IF NOT EXISTS users (id BIGSERIAL PRIMARY KEY, username TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, is_staff BOOLEAN NOT NULL DEFAULT FALSE, created_at TIMESTAMPTZ NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS split_tests (id BIGSERIAL PRIMARY KEY, uuid TEXT NOT NULL UNIQUE, slug TEXT NOT NULL, name TEXT NOT NULL, is_active BOOLEAN NOT NULL DEFAULT TRUE, site_id TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL, modified_at TIMESTAMPTZ NOT NULL, UNIQUE(site_id, slug))`,
	`CREATE TABLE IF NOT EXISTS cohorts (id BIGSERIAL PRIMARY KEY, uuid TEXT NOT NULL UNIQUE, slug TEXT NOT NULL, name TEXT NOT NULL, is_active BOOLEAN NOT NULL DEFAULT TRUE, weight INTEGER NOT NULL DEFAULT 1 CHECK (weight >= 0), split_test_id BIGINT NOT NULL REFERENCES split_tests(id) ON DELETE CASCADE, created_at TIMESTAMPTZ NOT NULL, modified_at TIMESTAMPTZ NOT NULL, UNIQUE(split_test_id, slug))`,
	`CREATE TABLE IF NOT EXISTS assignments (id BIGSERIAL PRIMARY KEY, cohort_id BIGINT NOT NULL REFERENCES cohorts(id) ON DELETE CASCADE, user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE, assigned_at TIMESTAMPTZ NOT NULL, UNIQUE(cohort_id, user_id))`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_split_tests_site_active ON split_tests(site_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_cohorts_split_test_active ON cohorts(split_test_id, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_user_id ON assignments(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_assigned_at ON assignments(assigned_at)`,
}
