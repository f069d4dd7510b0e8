package secrets

import (
	"os"
	"strings"
)

// EnvironmentStore reads IGHARVEST_<NAME> variables. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvName returns the variable consulted for name
func EnvName(name string) string {
	return "IGHARVEST_" + strings.ToUpper(name)
}

func (e *EnvironmentStore) Set(name, value string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Get(name string) (string, error) {
	if v := os.Getenv(EnvName(name)); v != "" {
		return v, nil
	}
	return "", ErrNotFound
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) List() ([]string, error) {
	var names []string
	for _, n := range Names() {
		if os.Getenv(EnvName(n)) != "" {
			names = append(names, n)
		}
	}
	return names, nil
}
