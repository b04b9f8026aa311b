package session

import (
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// systemKeyring stores secrets in the OS-native keyring.
type systemKeyring struct{}

// Set stores a secret in the system keyring.
func (s *systemKeyring) Set(service, account, password string) error {
	return keyring.Set(service, account, password)
}

// Get retrieves a secret from the system keyring.
func (s *systemKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

// Delete removes a secret from the system keyring.
func (s *systemKeyring) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

// MockKeyring is a test implementation of the Keyring interface.
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> secret
}

// NewMockKeyring creates a new mock keyring for testing.
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{
		store: make(map[string]map[string]string),
	}
}

// Set stores a secret in the mock keyring.
func (m *MockKeyring) Set(service, account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = password
	return nil
}

// Get retrieves a secret from the mock keyring.
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if accounts, ok := m.store[service]; ok {
		if secret, ok := accounts[account]; ok {
			return secret, nil
		}
	}
	return "", fmt.Errorf("secret not found for %s/%s", service, account)
}

// Delete removes a secret from the mock keyring.
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accounts, ok := m.store[service]; ok {
		delete(accounts, account)
	}
	return nil
}
