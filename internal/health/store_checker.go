package health

import (
	"context"
	"fmt"
	"os"

	"github.com/plansmith/plansmith/internal/credential"
)

// StoreChecker reports whether the encrypted credential store is usable.
// A missing store is only a degradation: keys can still come from the
// environment or from the request itself.
type StoreChecker struct {
	path string
}

// NewStoreChecker creates a checker for the store at path. An empty path
// means the default location.
func NewStoreChecker(path string) *StoreChecker {
	return &StoreChecker{path: path}
}

// Name returns the name of this health check.
func (c *StoreChecker) Name() string {
	return "credential-store"
}

// Check verifies the store file loads.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	path := c.path
	if path == "" {
		var err error
		path, err = credential.DefaultPath()
		if err != nil {
			return Degraded("cannot resolve credential store path").
				WithDetail("error", err.Error())
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Degraded("no credential store, environment keys only").
			WithDetail("path", path)
	}

	passphrase := os.Getenv(credential.PassphraseEnvVar)
	if passphrase == "" {
		return Degraded(fmt.Sprintf("store present but %s is not set", credential.PassphraseEnvVar)).
			WithDetail("path", path)
	}

	store, err := credential.NewStore(path, passphrase)
	if err != nil {
		return Unhealthy("credential store unreadable").
			WithDetail("path", path).
			WithDetail("error", err.Error())
	}

	return Healthy(fmt.Sprintf("%d stored credentials", len(store.Entries()))).
		WithDetail("path", path)
}
