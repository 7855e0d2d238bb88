package aes256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(iv[:], []byte("0123456789abcdef"))

	plaintext := []byte("the quick brown fox jumps")
	ciphertext, err := Encrypt(plaintext, key, iv)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(ciphertext, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptRejectsTamperedPadding(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(iv[:], []byte("0123456789abcdef"))

	ciphertext, err := Encrypt([]byte("hello"), key, iv)
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Decrypt(ciphertext, key, iv)
	assert.ErrorIs(t, err, ErrPadding)
}

func TestDecryptRejectsWrongLength(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	_, err := Decrypt([]byte("not a multiple of 16"), key, iv)
	assert.ErrorIs(t, err, ErrCiphertextLengthInvalid)
}
