package cleanup

import (
	"time"

	"github.com/AtRiskMedia/splittest-go/pkg/config"
)

// Config holds cleanup worker configuration, sourced from the central config package.
type Config struct {
	CleanupInterval  time.Duration
	VerboseReporting bool
	SessionTTL       time.Duration
}

// NewConfig creates a cleanup configuration from loaded settings.
func NewConfig(settings *config.Settings) *Config {
	return &Config{
		CleanupInterval:  settings.CleanupInterval,
		VerboseReporting: settings.CleanupVerbose,
		SessionTTL:       settings.SessionTTL,
	}
}
