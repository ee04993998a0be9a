package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog").
	got := Sign("key", "The quick brown fox ", "jumps over ", "the lazy ", "dog")
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", got)
}

func TestDeltaHeadersAt(t *testing.T) {
	h := &HMACAuth{Key: "k1", Secret: "s3cr3t"}
	headers := h.DeltaHeadersAt("POST", "/v2/orders", `{"size":"1"}`, 1700000000000)

	assert.Equal(t, "k1", headers["api-key"])
	assert.Equal(t, "1700000000000", headers["timestamp"])
	assert.Equal(t, Sign("s3cr3t", "1700000000000", "POST", "/v2/orders", `{"size":"1"}`), headers["signature"])
	assert.Len(t, headers["signature"], 64)
}

func TestHMACAuthStringRedacts(t *testing.T) {
	h := &HMACAuth{Key: "abcdefgh", Secret: "supersecret"}
	s := h.String()
	assert.NotContains(t, s, "supersecret")
	assert.Contains(t, s, "abcd****")
}

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "pw")
	require.NoError(t, err)

	secret, err := DecryptSecret(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, "my-api-secret", secret)

	_, err = DecryptSecret(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptSecretRejectsEmptyInput(t *testing.T) {
	_, err := EncryptSecret("secret", "")
	assert.Error(t, err)
	_, err = EncryptSecret("  ", "pw")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	s, err := LoadSecret(SecretConfig{Raw: " raw "})
	require.NoError(t, err)
	assert.Equal(t, "raw", s)

	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	s, err = LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", s)

	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
