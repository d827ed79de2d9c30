package credential

import (
	"os"
	"strings"
)

// Key origins reported in the request trace.
const (
	OriginStore       = "store"
	OriginRequest     = "request"
	OriginEnvironment = "environment"
)

// Lookup is the single read the resolver needs from a store. A nil store
// skips the first link of the chain.
type Lookup interface {
	Get(provider string) (string, error)
}

// Resolver walks the credential chain for a provider: stored credential
// first, then the key supplied on the request, then the provider's
// environment variable.
type Resolver struct {
	store Lookup
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store Lookup) *Resolver {
	return &Resolver{store: store}
}

// EnvVar returns the environment variable consulted for a provider,
// e.g. ANTHROPIC_API_KEY for anthropic.
func EnvVar(provider string) string {
	return strings.ToUpper(strings.TrimSpace(provider)) + "_API_KEY"
}

// Resolve returns the key for the provider and the origin it came from.
// ok is false when no link of the chain yields a key.
func (r *Resolver) Resolve(provider, requestKey string) (key, origin string, ok bool) {
	if r.store != nil {
		if v, err := r.store.Get(provider); err == nil && v != "" {
			return v, OriginStore, true
		}
	}
	if k := strings.TrimSpace(requestKey); k != "" {
		return k, OriginRequest, true
	}
	if v := os.Getenv(EnvVar(provider)); v != "" {
		return v, OriginEnvironment, true
	}
	return "", "", false
}
