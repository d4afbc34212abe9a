package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/persistence/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchemaIsIdempotent(t *testing.T) {
	raw, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	defer raw.Close()
	db := database.Wrap(raw, database.DialectSQLite)

	creator := NewTableCreator()
	require.NoError(t, creator.CreateSchema(context.Background(), db))
	require.NoError(t, creator.CreateSchema(context.Background(), db))

	for _, table := range []string{"users", "split_tests", "cohorts", "assignments"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestSchemaForDialect(t *testing.T) {
	sqliteTables, _ := SchemaFor(database.DialectSQLite)
	postgresTables, idx := SchemaFor(database.DialectPostgres)

	assert.Len(t, postgresTables, len(sqliteTables))
	assert.Contains(t, postgresTables[1], "BIGSERIAL")
	assert.Contains(t, sqliteTables[1], "AUTOINCREMENT")
	assert.NotEmpty(t, idx)
}

func TestNegativeWeightRejected(t *testing.T) {
	raw, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	raw.SetMaxOpenConns(1)
	defer raw.Close()
	db := database.Wrap(raw, database.DialectSQLite)
	require.NoError(t, NewTableCreator().CreateSchema(context.Background(), db))

	_, err = db.Exec(`INSERT INTO split_tests (uuid, slug, name, site_id, created_at, modified_at) VALUES ('e', 's', 'n', 'default', 'x', 'x')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO cohorts (uuid, slug, name, weight, split_test_id, created_at, modified_at) VALUES ('c', 's', 'n', -1, 1, 'x', 'x')`)
	assert.Error(t, err)
}
