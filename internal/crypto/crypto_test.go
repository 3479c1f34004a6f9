package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNewCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("not-hex")
	assert.Error(t, err)

	_, err = NewCipher("abcd")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	encrypted, err := c.Encrypt("s3cret-tenant-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-tenant-password", encrypted)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-tenant-password", decrypted)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	a, err := c.Encrypt("password")
	require.NoError(t, err)
	b, err := c.Encrypt("password")
	require.NoError(t, err)

	// Fresh nonce per call
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsTampered(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	encrypted, err := c.Encrypt("password")
	require.NoError(t, err)

	tampered := strings.Replace(encrypted, encrypted[:1], "A", 1)
	if tampered == encrypted {
		tampered = "B" + encrypted[1:]
	}

	_, err = c.Decrypt(tampered)
	assert.Error(t, err)
}
