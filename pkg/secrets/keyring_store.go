package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "igharvest"

// KeyringStore keeps secrets in the system keychain
type KeyringStore struct{}

// NewKeyringStore checks the keychain and fails when it cannot be written
func NewKeyringStore() (*KeyringStore, error) {
	const marker = "availability_check"
	if err := keyring.Set(keyringService, marker, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, marker)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Set(name, value string) error {
	if name == "" {
		return ErrInvalidName
	}
	if err := keyring.Set(keyringService, name, value); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Get(name string) (string, error) {
	v, err := keyring.Get(keyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read from keyring: %w", err)
	}
	return v, nil
}

func (k *KeyringStore) Delete(name string) error {
	if err := keyring.Delete(keyringService, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// List looks up every known name since the keychain cannot be enumerated
func (k *KeyringStore) List() ([]string, error) {
	var names []string
	for _, n := range Names() {
		if _, err := keyring.Get(keyringService, n); err == nil {
			names = append(names, n)
		}
	}
	return names, nil
}
