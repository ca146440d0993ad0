// Package secrets resolves "$env:NAME" header references into secret values
// at fetch time.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gitadpal/voran/internal/domain"
)

// EnvResolver reads secrets from the process environment, optionally
// restricted to names carrying Prefix. An unset or empty variable is a
// missing secret.
type EnvResolver struct {
	Prefix string
}

// NewEnvResolver loads the given dotenv files (missing files are ignored)
// into the environment and returns a resolver over it.
func NewEnvResolver(prefix string, dotenvFiles ...string) *EnvResolver {
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}
	return &EnvResolver{Prefix: prefix}
}

func (r *EnvResolver) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secrets: empty name: %w", domain.ErrMissingSecret)
	}
	v, ok := os.LookupEnv(r.Prefix + name)
	if !ok || v == "" {
		return "", fmt.Errorf("secrets: %s: %w", r.Prefix+name, domain.ErrMissingSecret)
	}
	return v, nil
}

// MapResolver serves secrets from a fixed map. Useful for tests and for
// secrets injected by an orchestrator.
type MapResolver map[string]string

func (m MapResolver) Resolve(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("secrets: %s: %w", name, domain.ErrMissingSecret)
	}
	return v, nil
}

// Chain tries each resolver in order and returns the first hit.
type Chain []domain.SecretResolver

func (c Chain) Resolve(name string) (string, error) {
	for _, r := range c {
		v, err := r.Resolve(name)
		if err == nil {
			return v, nil
		}
	}
	return "", fmt.Errorf("secrets: %s: %w", name, domain.ErrMissingSecret)
}

// ParseRef reports whether a header value is a secret reference and returns
// the referenced name. A reference with an empty name returns ok=true and
// name="" so callers can reject it.
func ParseRef(value string) (name string, ok bool) {
	if !strings.HasPrefix(value, domain.EnvSecretPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(value, domain.EnvSecretPrefix)), true
}
