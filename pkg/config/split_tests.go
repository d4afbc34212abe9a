package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SplitTestsSettingName is the env.json key holding split test overrides.
const SplitTestsSettingName = "SPLIT_TESTS"

// ErrImproperlyConfigured marks configuration that is present but malformed.
var ErrImproperlyConfigured = errors.New("improperly configured")

// SplitTestSettings controls the split test cookies and session key.
type SplitTestSettings struct {
	CookieDomain   string
	CookieMaxAge   int
	CookiePrefix   string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite http.SameSite
	SessionKey     string
}

// DefaultSplitTestSettings returns the settings used when nothing is overridden.
func DefaultSplitTestSettings() SplitTestSettings {
	return SplitTestSettings{
		CookieDomain:   "",
		CookieMaxAge:   31_536_000, // one year
		CookiePrefix:   "dst:",
		CookieSecure:   true,
		CookieHTTPOnly: false,
		CookieSameSite: http.SameSiteLaxMode,
		SessionKey:     "split_tests",
	}
}

// ParseSplitTestSettings merges a raw SPLIT_TESTS value over the defaults.
// An absent or null value yields the defaults. Anything other than a JSON
// object, or a recognized option of the wrong type, is ErrImproperlyConfigured.
func ParseSplitTestSettings(raw json.RawMessage) (SplitTestSettings, error) {
	settings := DefaultSplitTestSettings()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return settings, nil
	}
	if trimmed[0] != '{' {
		return settings, fmt.Errorf("%w: %s must be an object if it exists", ErrImproperlyConfigured, SplitTestsSettingName)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return settings, fmt.Errorf("%w: %s: %v", ErrImproperlyConfigured, SplitTestsSettingName, err)
	}

	for key, value := range values {
		var err error
		switch key {
		case "COOKIE_DOMAIN":
			var domain *string
			err = json.Unmarshal(value, &domain)
			if err == nil {
				settings.CookieDomain = ""
				if domain != nil {
					settings.CookieDomain = *domain
				}
			}
		case "COOKIE_MAX_AGE":
			err = json.Unmarshal(value, &settings.CookieMaxAge)
		case "COOKIE_PREFIX":
			err = json.Unmarshal(value, &settings.CookiePrefix)
		case "COOKIE_SECURE":
			err = json.Unmarshal(value, &settings.CookieSecure)
		case "COOKIE_HTTPONLY":
			err = json.Unmarshal(value, &settings.CookieHTTPOnly)
		case "COOKIE_SAMESITE":
			settings.CookieSameSite, err = parseSameSite(value)
		case "SESSION_KEY":
			err = json.Unmarshal(value, &settings.SessionKey)
		default:
			continue
		}
		if err != nil {
			return DefaultSplitTestSettings(), fmt.Errorf("%w: %s.%s: %v", ErrImproperlyConfigured, SplitTestsSettingName, key, err)
		}
	}

	if settings.SessionKey == "" {
		return DefaultSplitTestSettings(), fmt.Errorf("%w: %s.SESSION_KEY cannot be empty", ErrImproperlyConfigured, SplitTestsSettingName)
	}

	return settings, nil
}

// parseSameSite accepts "Lax", "Strict", "None" or null (attribute omitted).
func parseSameSite(value json.RawMessage) (http.SameSite, error) {
	var mode *string
	if err := json.Unmarshal(value, &mode); err != nil {
		return http.SameSiteDefaultMode, err
	}
	if mode == nil {
		return http.SameSiteDefaultMode, nil
	}
	switch strings.ToLower(*mode) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return http.SameSiteDefaultMode, fmt.Errorf("unknown samesite mode %q", *mode)
}
