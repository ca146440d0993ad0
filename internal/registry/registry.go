// Package registry holds the static catalog of known data sources. It is
// loaded once at startup and passed explicitly to the validator and the API.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultCatalog []byte

// Auth describes how a data source authenticates requests.
type Auth struct {
	Type      string `yaml:"type" json:"type"` // none | header | query
	Header    string `yaml:"header,omitempty" json:"header,omitempty"`
	SecretEnv string `yaml:"secret_env,omitempty" json:"secret_env,omitempty"`
}

// Endpoint is one documented endpoint of a data source.
type Endpoint struct {
	Method      string `yaml:"method" json:"method"`
	Path        string `yaml:"path" json:"path"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	ExamplePath string `yaml:"example_path,omitempty" json:"example_path,omitempty"`
}

// Source is one catalog entry.
type Source struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Category    string     `yaml:"category" json:"category"`
	Kind        string     `yaml:"kind" json:"kind"` // http | browser
	BaseURL     string     `yaml:"base_url" json:"base_url"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Auth        Auth       `yaml:"auth" json:"auth"`
	Endpoints   []Endpoint `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
}

type catalogFile struct {
	Sources []Source `yaml:"sources"`
}

// Registry is a read-only, load-once view over the catalog.
type Registry struct {
	sources []Source
	byID    map[string]int
	secrets map[string]struct{}
}

// Load reads the catalog at path, or the embedded default catalog when path
// is empty.
func Load(path string) (*Registry, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("registry: reading %s: %w", path, err)
		}
		data = b
	}
	return FromBytes(data)
}

// FromBytes parses a YAML catalog.
func FromBytes(data []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parsing catalog: %w", err)
	}

	r := &Registry{
		sources: f.Sources,
		byID:    make(map[string]int, len(f.Sources)),
		secrets: make(map[string]struct{}),
	}
	for i, s := range f.Sources {
		if s.ID == "" {
			return nil, fmt.Errorf("registry: source #%d has no id", i)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate source id %q", s.ID)
		}
		r.byID[s.ID] = i
		if s.Auth.SecretEnv != "" {
			r.secrets[s.Auth.SecretEnv] = struct{}{}
		}
	}
	return r, nil
}

// KnownSecret reports whether any catalog entry declares the named secret.
func (r *Registry) KnownSecret(name string) bool {
	_, ok := r.secrets[name]
	return ok
}

// Find returns the source with the given id.
func (r *Registry) Find(id string) (Source, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Source{}, false
	}
	return r.sources[i], true
}

// Sources returns a copy of all catalog entries.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Secrets returns the sorted set of secret names the catalog declares.
func (r *Registry) Secrets() []string {
	out := make([]string, 0, len(r.secrets))
	for s := range r.secrets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
