// Package tenant handles loading and providing tenant-specific configurations.
package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Supported DATABASE_DRIVER values.
const (
	DriverSQLite   = "sqlite3"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// DefaultTenantID is used in single tenant mode.
const DefaultTenantID = "default"

// Config represents the structure of a single tenant's configuration
type Config struct {
	TenantID       string                   `json:"tenantId"`
	Domains        []string                 `json:"DOMAINS"`
	DatabaseDriver string                   `json:"DATABASE_DRIVER"`
	PostgresDSN    string                   `json:"POSTGRES_DSN"`
	TursoDatabase  string                   `json:"TURSO_DATABASE_URL"`
	TursoToken     string                   `json:"TURSO_AUTH_TOKEN"`
	JWTSecret      string                   `json:"JWT_SECRET"`
	RawSplitTests  json.RawMessage          `json:"SPLIT_TESTS"`
	SplitTests     config.SplitTestSettings `json:"-"`
	SQLitePath     string                   `json:"-"`
}

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
// The default tenant runs on built-in settings when it has no file.
func LoadTenantConfig(settings *config.Settings, tenantID string) (*Config, error) {
	configPath := filepath.Join(settings.ConfigDir(), tenantID, "env.json")

	var tenantConfig Config
	configFile, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && tenantID == DefaultTenantID:
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("tenant config file not found at %s", configPath)
	case err != nil:
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	default:
		if err := json.Unmarshal(configFile, &tenantConfig); err != nil {
			return nil, fmt.Errorf("%w: could not parse tenant config json: %v", config.ErrImproperlyConfigured, err)
		}
	}

	tenantConfig.TenantID = tenantID
	tenantConfig.SQLitePath = filepath.Join(settings.DBDir(), tenantID, "splittest.db")

	if err := tenantConfig.resolveDriver(); err != nil {
		return nil, err
	}

	splitTests, err := config.ParseSplitTestSettings(tenantConfig.RawSplitTests)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	tenantConfig.SplitTests = splitTests

	return &tenantConfig, nil
}

func (c *Config) resolveDriver() error {
	switch c.DatabaseDriver {
	case "":
		if c.TursoDatabase != "" && c.TursoToken != "" {
			c.DatabaseDriver = DriverLibSQL
		} else {
			c.DatabaseDriver = DriverSQLite
		}
	case DriverSQLite:
	case DriverLibSQL:
		if c.TursoDatabase == "" {
			return fmt.Errorf("%w: tenant %s: TURSO_DATABASE_URL is required for libsql", config.ErrImproperlyConfigured, c.TenantID)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: tenant %s: POSTGRES_DSN is required for postgres", config.ErrImproperlyConfigured, c.TenantID)
		}
	default:
		return fmt.Errorf("%w: tenant %s: unknown DATABASE_DRIVER %q", config.ErrImproperlyConfigured, c.TenantID, c.DatabaseDriver)
	}
	return nil
}

// DataSource returns the driver name and DSN for the tenant database.
func (c *Config) DataSource() (string, string) {
	switch c.DatabaseDriver {
	case DriverLibSQL:
		return DriverLibSQL, c.TursoDatabase + "?authToken=" + c.TursoToken
	case DriverPostgres:
		return DriverPostgres, c.PostgresDSN
	default:
		return DriverSQLite, "file:" + c.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000"
	}
}
