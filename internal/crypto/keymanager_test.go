package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

type staticSecrets map[string]string

func (s staticSecrets) Resolve(name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", domain.ErrMissingSecret
	}
	return v, nil
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadKeyOrder(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, SecretName: "SIGNER"}, staticSecrets{"SIGNER": "ab"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	got, err = LoadKey(KeyConfig{SecretName: "SIGNER"}, staticSecrets{"SIGNER": " 0x" + testKeyHex + "\n"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{SecretName: "NOPE"}, staticSecrets{})
	assert.ErrorIs(t, err, domain.ErrMissingSecret)

	_, err = LoadKey(KeyConfig{}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}
