package store

import (
	"testing"

	"sendqueue/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-very-long-test-secret-at-least-32-chars"

func TestEncryptor_DisabledPassesThrough(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "false")

	enc, err := newEncryptor()
	require.NoError(t, err)

	plaintext := []byte(`[{"localId":"m1"}]`)
	out, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "true")
	t.Setenv(constants.EnvEncryptionSecret, testSecret)

	enc, err := newEncryptor()
	require.NoError(t, err)

	plaintext := []byte(`[{"localId":"m1","payload":{"kind":"text","text":"hello"}}]`)
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptor_MissingSecret(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "true")
	t.Setenv(constants.EnvEncryptionSecret, "")

	_, err := newEncryptor()
	assert.Error(t, err)
}

func TestEncryptor_WeakSecret(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "true")
	t.Setenv(constants.EnvEncryptionSecret, "too-short")

	_, err := newEncryptor()
	assert.Error(t, err)
}

func TestEncryptor_DecryptGarbage(t *testing.T) {
	t.Setenv(constants.EnvEnableEncryption, "true")
	t.Setenv(constants.EnvEncryptionSecret, testSecret)

	enc, err := newEncryptor()
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte("short"))
	assert.Error(t, err)

	_, err = enc.Decrypt([]byte("this is long enough to carry a nonce but is not a valid ciphertext"))
	assert.Error(t, err)
}
