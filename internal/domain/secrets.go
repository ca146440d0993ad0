package domain

// SecretResolver looks up a named secret referenced by a "$env:NAME" header
// value. Implementations return ErrMissingSecret when the name is unknown.
type SecretResolver interface {
	Resolve(name string) (string, error)
}

// EnvSecretPrefix marks a header value that must be resolved at fetch time.
const EnvSecretPrefix = "$env:"
