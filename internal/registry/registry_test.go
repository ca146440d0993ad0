package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultCatalog(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, r.Sources())
	assert.True(t, r.KnownSecret("FOOTBALL_DATA_API_KEY"))
	assert.False(t, r.KnownSecret("NOT_A_SECRET"))

	s, ok := r.Find("coingecko")
	require.True(t, ok)
	assert.Equal(t, "crypto", s.Category)

	_, ok = r.Find("missing")
	assert.False(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	doc := `
sources:
  - id: custom
    name: Custom
    kind: http
    base_url: https://example.com
    auth:
      type: header
      header: Authorization
      secret_env: CUSTOM_TOKEN
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSTOM_TOKEN"}, r.Secrets())
	assert.Len(t, r.Sources(), 1)
}

func TestFromBytesRejectsBadCatalogs(t *testing.T) {
	_, err := FromBytes([]byte("sources:\n  - name: no id\n"))
	assert.Error(t, err)

	_, err = FromBytes([]byte("sources:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = FromBytes([]byte("sources: [\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
