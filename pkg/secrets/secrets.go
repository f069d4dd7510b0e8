// Package secrets keeps credentials such as the Apify token out of config
// files. Values are looked up in the OS keyring, then an encrypted file,
// then the environment.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"igharvest/pkg/config"
)

// Known secret names
const (
	ProviderToken    = "provider_token"
	StoreAdminSecret = "store_admin_secret"
	StoreDSN         = "store_dsn"
	JWTSecret        = "jwt_secret"
	AdminPassword    = "admin_password"
	TriggerSecret    = "trigger_secret"
	SentryDSN        = "sentry_dsn"
)

// Errors
var (
	ErrNotFound         = errors.New("secret not found")
	ErrInvalidName      = errors.New("invalid secret name")
	ErrStoreUnavailable = errors.New("secret store unavailable")
)

// bindings maps each known secret onto its config field
var bindings = map[string]func(c *config.Config) *string{
	ProviderToken:    func(c *config.Config) *string { return &c.Provider.Token },
	StoreAdminSecret: func(c *config.Config) *string { return &c.Store.AdminSecret },
	StoreDSN:         func(c *config.Config) *string { return &c.Store.DSN },
	JWTSecret:        func(c *config.Config) *string { return &c.Auth.JWTSecret },
	AdminPassword:    func(c *config.Config) *string { return &c.Auth.AdminPassword },
	TriggerSecret:    func(c *config.Config) *string { return &c.Server.TriggerSecret },
	SentryDSN:        func(c *config.Config) *string { return &c.Reporting.SentryDSN },
}

// Names returns the known secret names in sorted order
func Names() []string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKnown reports whether name is a known secret
func IsKnown(name string) bool {
	_, ok := bindings[name]
	return ok
}

// Store is a backend holding named secrets
type Store interface {
	Set(name, value string) error
	Get(name string) (string, error)
	Delete(name string) error
	// List returns the names that currently hold a value
	List() ([]string, error)
}

// Manager reads from several stores in priority order and writes to the
// first one that accepts the value
type Manager struct {
	stores []Store
}

// NewManager creates a manager with keyring, encrypted file and
// environment backends. The keyring is skipped when unavailable.
func NewManager() (*Manager, error) {
	var stores []Store

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	fs, err := NewEncryptedFileStore(filepath.Join(configDir, "secrets.enc"), configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Set saves value using the first store that accepts it
func (m *Manager) Set(name, value string) error {
	if !IsKnown(name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	if value == "" {
		return errors.New("secret value is required")
	}

	var lastErr error
	for _, s := range m.stores {
		if err := s.Set(name, value); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store secret: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Get returns the value from the first store that has it
func (m *Manager) Get(name string) (string, error) {
	for _, s := range m.stores {
		if v, err := s.Get(name); err == nil && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Delete removes name from every store
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, s := range m.stores {
		if err := s.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete secret: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// List returns the names set in any store
func (m *Manager) List() ([]string, error) {
	seen := make(map[string]bool)
	for _, s := range m.stores {
		names, err := s.List()
		if err != nil {
			continue
		}
		for _, n := range names {
			seen[n] = true
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Apply fills every empty secret field of cfg from the stores. Values
// already present in cfg win.
func (m *Manager) Apply(cfg *config.Config) {
	for name, field := range bindings {
		p := field(cfg)
		if *p != "" {
			continue
		}
		if v, err := m.Get(name); err == nil {
			*p = v
		}
	}
}

// Mask hides all but the first and last 4 characters of s
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igharvest")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igharvest")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igharvest")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}
