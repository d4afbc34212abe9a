package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SPLITTEST_HOME", home)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "memory", s.CacheBackend)
	assert.Equal(t, 336*time.Hour, s.SessionTTL)
	assert.Equal(t, filepath.Join(home, "config"), s.ConfigDir())
	assert.Equal(t, filepath.Join(home, "db"), s.DBDir())
	assert.Equal(t, filepath.Join(home, "cache"), s.BadgerPath)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("SPLITTEST_HOME", t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("CACHE_BACKEND", "Badger")
	t.Setenv("SLOW_QUERY_THRESHOLD", "250ms")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", s.Port)
	assert.Equal(t, "badger", s.CacheBackend)
	assert.Equal(t, 250*time.Millisecond, SlowQueryThreshold)
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	t.Setenv("SPLITTEST_HOME", t.TempDir())
	t.Setenv("CACHE_BACKEND", "memcached")

	_, err := Load()
	assert.ErrorIs(t, err, ErrImproperlyConfigured)
}

func TestLoadWrapsParseErrors(t *testing.T) {
	t.Setenv("SPLITTEST_HOME", t.TempDir())
	t.Setenv("DB_MAX_OPEN_CONNS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
