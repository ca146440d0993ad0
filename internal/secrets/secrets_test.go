package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

func TestEnvResolver(t *testing.T) {
	t.Setenv("VORAN_TEST_API_KEY", "k-123")
	t.Setenv("VORAN_TEST_EMPTY", "")

	r := &EnvResolver{}
	v, err := r.Resolve("VORAN_TEST_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "k-123", v)

	_, err = r.Resolve("VORAN_TEST_EMPTY")
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
	_, err = r.Resolve("VORAN_TEST_UNSET_SECRET")
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
	_, err = r.Resolve("")
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}

func TestEnvResolverPrefix(t *testing.T) {
	t.Setenv("SECRET_ODDS_KEY", "odds")
	r := &EnvResolver{Prefix: "SECRET_"}
	v, err := r.Resolve("ODDS_KEY")
	require.NoError(t, err)
	assert.Equal(t, "odds", v)
}

func TestNewEnvResolverLoadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VORAN_DOTENV_SECRET=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VORAN_DOTENV_SECRET") })

	r := NewEnvResolver("", path, filepath.Join(t.TempDir(), "missing.env"))
	v, err := r.Resolve("VORAN_DOTENV_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
}

func TestChain(t *testing.T) {
	c := Chain{MapResolver{"A": "1"}, MapResolver{"A": "shadowed", "B": "2"}}

	v, err := c.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = c.Resolve("B")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = c.Resolve("C")
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}

func TestParseRef(t *testing.T) {
	name, ok := ParseRef("$env:ODDS_API_KEY")
	assert.True(t, ok)
	assert.Equal(t, "ODDS_API_KEY", name)

	name, ok = ParseRef("$env:")
	assert.True(t, ok)
	assert.Empty(t, name)

	_, ok = ParseRef("Bearer abc")
	assert.False(t, ok)
}
