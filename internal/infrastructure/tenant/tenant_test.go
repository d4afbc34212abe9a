package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/caching/manager"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		HomeDir:           t.TempDir(),
		DBMaxOpenConns:    4,
		DBMaxIdleConns:    2,
		DBConnMaxLifetime: time.Minute,
		DBConnMaxIdleTime: time.Minute,
	}
}

func writeEnv(t *testing.T, settings *config.Settings, tenantID, body string) {
	t.Helper()
	dir := filepath.Join(settings.ConfigDir(), tenantID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "env.json"), []byte(body), 0644))
}

func TestLoadTenantConfigDefaults(t *testing.T) {
	settings := testSettings(t)

	cfg, err := LoadTenantConfig(settings, DefaultTenantID)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, config.DefaultSplitTestSettings(), cfg.SplitTests)
	assert.Equal(t, filepath.Join(settings.DBDir(), "default", "splittest.db"), cfg.SQLitePath)

	_, err = LoadTenantConfig(settings, "missing")
	assert.Error(t, err)
}

func TestLoadTenantConfigSplitTests(t *testing.T) {
	settings := testSettings(t)
	writeEnv(t, settings, "acme", `{"SPLIT_TESTS": {"COOKIE_PREFIX": "ab:", "COOKIE_SECURE": false}}`)

	cfg, err := LoadTenantConfig(settings, "acme")
	require.NoError(t, err)
	assert.Equal(t, "ab:", cfg.SplitTests.CookiePrefix)
	assert.False(t, cfg.SplitTests.CookieSecure)
	assert.Equal(t, "split_tests", cfg.SplitTests.SessionKey)
}

func TestLoadTenantConfigRejectsNonMapping(t *testing.T) {
	settings := testSettings(t)
	writeEnv(t, settings, "acme", `{"SPLIT_TESTS": ["COOKIE_PREFIX"]}`)

	_, err := LoadTenantConfig(settings, "acme")
	assert.ErrorIs(t, err, config.ErrImproperlyConfigured)
}

func TestLoadTenantConfigDriverValidation(t *testing.T) {
	settings := testSettings(t)

	writeEnv(t, settings, "pg", `{"DATABASE_DRIVER": "postgres"}`)
	_, err := LoadTenantConfig(settings, "pg")
	assert.ErrorIs(t, err, config.ErrImproperlyConfigured)

	writeEnv(t, settings, "odd", `{"DATABASE_DRIVER": "oracle"}`)
	_, err = LoadTenantConfig(settings, "odd")
	assert.ErrorIs(t, err, config.ErrImproperlyConfigured)

	writeEnv(t, settings, "turso", `{"TURSO_DATABASE_URL": "libsql://x.turso.io", "TURSO_AUTH_TOKEN": "t"}`)
	cfg, err := LoadTenantConfig(settings, "turso")
	require.NoError(t, err)
	assert.Equal(t, DriverLibSQL, cfg.DatabaseDriver)
	driver, dsn := cfg.DataSource()
	assert.Equal(t, DriverLibSQL, driver)
	assert.Equal(t, "libsql://x.turso.io?authToken=t", dsn)
}

func TestRegistryRoundTrip(t *testing.T) {
	dir := t.TempDir()

	registry, err := LoadTenantRegistry(dir)
	require.NoError(t, err)
	assert.Contains(t, registry.Tenants, DefaultTenantID)

	require.NoError(t, RegisterTenant(dir, "acme"))
	registry, err = LoadTenantRegistry(dir)
	require.NoError(t, err)
	assert.Contains(t, registry.Tenants, "acme")
	assert.Equal(t, StatusInactive, registry.Tenants["acme"].Status)
}

func TestRegisterTenantProvisionsJWTSecret(t *testing.T) {
	settings := testSettings(t)
	writeEnv(t, settings, "acme", `{"SPLIT_TESTS": {"COOKIE_PREFIX": "ab:"}}`)

	require.NoError(t, RegisterTenant(settings.ConfigDir(), "acme"))
	cfg, err := LoadTenantConfig(settings, "acme")
	require.NoError(t, err)
	assert.Len(t, cfg.JWTSecret, 64)
	assert.Equal(t, "ab:", cfg.SplitTests.CookiePrefix)

	// an existing secret is never rotated
	secret := cfg.JWTSecret
	require.NoError(t, RegisterTenant(settings.ConfigDir(), "acme"))
	cfg, err = LoadTenantConfig(settings, "acme")
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.JWTSecret)

	require.NoError(t, RegisterTenant(settings.ConfigDir(), DefaultTenantID))
	cfg, err = LoadTenantConfig(settings, DefaultTenantID)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestDetectorModes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "acme"), 0755))

	single, err := NewDetector(dir, false, logging.NewNopLogger())
	require.NoError(t, err)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	id, err := single.DetectTenant(c)
	require.NoError(t, err)
	assert.Equal(t, DefaultTenantID, id)

	multi, err := NewDetector(dir, true, logging.NewNopLogger())
	require.NoError(t, err)
	_, err = multi.DetectTenant(c)
	assert.ErrorIs(t, err, ErrMissingTenant)

	c.Request.Header.Set(TenantHeader, "acme")
	id, err = multi.DetectTenant(c)
	require.NoError(t, err)
	assert.Equal(t, "acme", id)

	c.Request.Header.Set(TenantHeader, "ghost")
	_, err = multi.DetectTenant(c)
	assert.ErrorIs(t, err, ErrUnknownTenant)

	c.Request.Header.Set(TenantHeader, "../etc")
	_, err = multi.DetectTenant(c)
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestManagerCreatesContextWithSchema(t *testing.T) {
	settings := testSettings(t)
	logger := logging.NewNopLogger()
	m, err := NewManager(settings, manager.NewMemoryManager(logger), logger)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.PreActivateAllTenants(ctx))

	tc, err := m.ContextFor(ctx, DefaultTenantID)
	require.NoError(t, err)
	assert.True(t, tc.IsActive())
	assert.Equal(t, "dst:", tc.SplitTestSettings().CookiePrefix)

	var n int
	require.NoError(t, tc.Database.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM split_tests`).Scan(&n))
	assert.Zero(t, n)

	again, err := m.ContextFor(ctx, DefaultTenantID)
	require.NoError(t, err)
	assert.Same(t, tc, again)

	active, err := m.ActiveTenantIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultTenantID}, active)
}

func TestPoolCleanupRecreatesContext(t *testing.T) {
	settings := testSettings(t)
	logger := logging.NewNopLogger()
	m, err := NewManager(settings, manager.NewMemoryManager(logger), logger)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	first, err := m.ContextFor(ctx, DefaultTenantID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, m.GetPool().CleanupStaleConnections(time.Millisecond))

	second, err := m.ContextFor(ctx, DefaultTenantID)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NoError(t, second.Database.Ping(ctx))
}
