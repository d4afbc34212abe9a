// Package config provides centralized default values for the split test server
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Settings holds process-wide configuration sourced from the environment.
type Settings struct {
	// Server Configuration
	Port               string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	ServerIdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	GinMode            string        `env:"GIN_MODE" envDefault:"debug"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`

	// Tenancy
	HomeDir     string `env:"SPLITTEST_HOME"`
	MultiTenant bool   `env:"ENABLE_MULTI_TENANT" envDefault:"false"`

	// Database Pool
	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"3"`
	DBConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime  time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"3m"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"100ms"`

	// Cache
	CacheBackend   string  `env:"CACHE_BACKEND" envDefault:"memory"`
	BadgerPath     string  `env:"BADGER_PATH"`
	BadgerInMemory bool    `env:"BADGER_IN_MEMORY" envDefault:"false"`
	BadgerGCRatio  float64 `env:"BADGER_GC_DISCARD_RATIO" envDefault:"0.5"`

	// Sessions
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"splittest_session"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"336h"`
	AuthCookieName    string        `env:"AUTH_COOKIE_NAME" envDefault:"splittest_auth"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	// Cleanup
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"30m"`
	CleanupVerbose  bool          `env:"CLEANUP_VERBOSE" envDefault:"false"`

	// Observability
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"`
	LogToFile      bool   `env:"LOG_TO_FILE" envDefault:"false"`
	LogDirectory   string `env:"LOG_DIRECTORY" envDefault:"logs"`
	TraceExporter  string `env:"TRACE_EXPORTER" envDefault:"none"`
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"splittest-go"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
}

var (
	envLoaded sync.Once

	// SlowQueryThreshold is read by the persistence layer; Load keeps it in sync.
	SlowQueryThreshold = 100 * time.Millisecond
)

func loadEnvFile() {
	envLoaded.Do(func() {
		err := godotenv.Load()
		if err == nil {
			log.Println("Loaded configuration overrides from .env file")
			return
		}
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Ignoring unreadable .env file: %v", err)
		}
	})
}

// Load reads .env overrides and parses the environment into Settings.
func Load() (*Settings, error) {
	loadEnvFile()

	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if s.HomeDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not find user home directory: %w", err)
		}
		s.HomeDir = filepath.Join(homeDir, "splittest-go")
	}
	if s.BadgerPath == "" {
		s.BadgerPath = filepath.Join(s.HomeDir, "cache")
	}

	s.CacheBackend = strings.ToLower(s.CacheBackend)
	switch s.CacheBackend {
	case "memory", "badger":
	default:
		return nil, fmt.Errorf("%w: CACHE_BACKEND must be memory or badger, got %q", ErrImproperlyConfigured, s.CacheBackend)
	}

	SlowQueryThreshold = s.SlowQueryThreshold
	return &s, nil
}

// ConfigDir is where tenant env.json files and the tenant registry live.
func (s *Settings) ConfigDir() string {
	return filepath.Join(s.HomeDir, "config")
}

// DBDir is where tenant SQLite databases live.
func (s *Settings) DBDir() string {
	return filepath.Join(s.HomeDir, "db")
}
