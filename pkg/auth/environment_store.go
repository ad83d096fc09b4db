package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// This is how unattended runs (cron, CI) supply credentials.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	domain := os.Getenv("LIGHTSPEED_DOMAIN")
	token := os.Getenv("LIGHTSPEED_TOKEN")

	if domain == "" || token == "" {
		return nil, ErrCredentialsNotFound
	}

	// Environment variables don't carry an account name, so we use
	// "default" or the requested one
	if name == "" {
		name = "default"
	}

	return &Account{
		Name:         name,
		Domain:       domain,
		Token:        token,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	domain := os.Getenv("LIGHTSPEED_DOMAIN")
	token := os.Getenv("LIGHTSPEED_TOKEN")
	return domain != "" && token != ""
}
