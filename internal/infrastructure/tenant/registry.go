package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/security"
)

// jwtSecretLength is the hex length of generated tenant JWT secrets.
const jwtSecretLength = 64

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusReserved = "reserved"
)

// TenantRegistry holds the global tenant configuration
type TenantRegistry struct {
	Tenants map[string]TenantInfo `json:"tenants"`
}

// TenantInfo holds tenant metadata
type TenantInfo struct {
	TenantID       string   `json:"tenantId"`
	Domains        []string `json:"domains"`
	Status         string   `json:"status"`
	DatabaseDriver string   `json:"databaseDriver"`
}

func registryPath(configDir string) string {
	return filepath.Join(configDir, "tenants.json")
}

// LoadTenantRegistry loads the global tenant registry, falling back to a
// registry holding only the default tenant.
func LoadTenantRegistry(configDir string) (*TenantRegistry, error) {
	data, err := os.ReadFile(registryPath(configDir))
	if errors.Is(err, fs.ErrNotExist) {
		return &TenantRegistry{
			Tenants: map[string]TenantInfo{
				DefaultTenantID: {
					TenantID: DefaultTenantID,
					Domains:  []string{"*"},
					Status:   StatusInactive,
				},
			},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant registry: %w", err)
	}

	var registry TenantRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse tenant registry: %w", err)
	}
	if registry.Tenants == nil {
		registry.Tenants = make(map[string]TenantInfo)
	}
	return &registry, nil
}

// SaveTenantRegistry writes the registry to disk.
func SaveTenantRegistry(configDir string, registry *TenantRegistry) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.WriteFile(registryPath(configDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// RegisterTenant adds the tenant to the registry if it is missing and makes
// sure its env.json carries a JWT_SECRET.
func RegisterTenant(configDir, tenantID string) error {
	registry, err := LoadTenantRegistry(configDir)
	if err != nil {
		return err
	}

	if _, exists := registry.Tenants[tenantID]; !exists {
		registry.Tenants[tenantID] = TenantInfo{
			TenantID: tenantID,
			Domains:  []string{"*"},
			Status:   StatusInactive,
		}
		if err := SaveTenantRegistry(configDir, registry); err != nil {
			return err
		}
	}
	return ensureJWTSecret(configDir, tenantID)
}

// ensureJWTSecret writes a generated JWT_SECRET into the tenant's env.json,
// keeping every other key, when none is set.
func ensureJWTSecret(configDir, tenantID string) error {
	path := filepath.Join(configDir, tenantID, "env.json")

	values := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read tenant config: %w", err)
	default:
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("failed to parse tenant config: %w", err)
		}
	}

	if secret, _ := values["JWT_SECRET"].(string); secret != "" {
		return nil
	}
	secret, err := security.GenerateSecureKey(jwtSecretLength)
	if err != nil {
		return err
	}
	values["JWT_SECRET"] = secret

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tenant config directory: %w", err)
	}
	out, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write tenant config: %w", err)
	}
	return nil
}
