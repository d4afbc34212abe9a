package database

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	query := "SELECT id FROM cohorts WHERE split_test_id = ? AND slug = ?"
	assert.Equal(t, query, Rebind(DialectSQLite, query))
	assert.Equal(t, "SELECT id FROM cohorts WHERE split_test_id = $1 AND slug = $2", Rebind(DialectPostgres, query))
}

func TestDialectForDriver(t *testing.T) {
	assert.Equal(t, DialectPostgres, DialectForDriver("postgres"))
	assert.Equal(t, DialectSQLite, DialectForDriver("sqlite3"))
	assert.Equal(t, DialectSQLite, DialectForDriver("libsql"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: assignments.cohort_id, assignments.user_id")))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("database is locked")))
}

func TestTimestampScan(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 30, 0, 5, time.UTC)

	var ts Timestamp
	require.NoError(t, ts.Scan(FormatTime(when)))
	assert.True(t, when.Equal(ts.Time))

	require.NoError(t, ts.Scan([]byte("2024-03-01 12:30:00")))
	assert.Equal(t, 12, ts.Time.Hour())

	require.NoError(t, ts.Scan(when))
	assert.True(t, when.Equal(ts.Time))

	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(42))
}

func TestFormatTimeSortsChronologically(t *testing.T) {
	early := FormatTime(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	late := FormatTime(time.Date(2024, 1, 1, 10, 0, 0, 1, time.UTC))
	assert.Less(t, early, late)
	assert.Len(t, late, len(early))
}
