package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratchetcore/crypto/key"
)

func mustPub(t *testing.T) key.PublicKey {
	t.Helper()
	priv, err := key.New()
	require.NoError(t, err)
	pub, err := priv.Public()
	require.NoError(t, err)
	return pub
}

func TestWhisperMessageRoundTrip(t *testing.T) {
	ratchetKey := mustPub(t)
	senderIdentity := mustPub(t).Prefixed()
	receiverIdentity := mustPub(t).Prefixed()
	macKey := [32]byte{1, 2, 3}

	msg := WhisperMessage{
		RatchetKey:      ratchetKey,
		Counter:         7,
		PreviousCounter: 3,
		Ciphertext:      []byte("hello world"),
	}

	framed := EncodeWhisperMessage(msg, macKey, 0x33, senderIdentity, receiverIdentity)
	parsed, err := DecodeWhisperMessage(framed)
	require.NoError(t, err)

	assert.Equal(t, msg.RatchetKey, parsed.RatchetKey)
	assert.Equal(t, msg.Counter, parsed.Counter)
	assert.Equal(t, msg.PreviousCounter, parsed.PreviousCounter)
	assert.Equal(t, msg.Ciphertext, parsed.Ciphertext)
	assert.True(t, VerifyMAC(parsed, macKey, senderIdentity, receiverIdentity))
}

func TestWhisperMessageBadMAC(t *testing.T) {
	ratchetKey := mustPub(t)
	senderIdentity := mustPub(t).Prefixed()
	receiverIdentity := mustPub(t).Prefixed()
	macKey := [32]byte{1, 2, 3}
	wrongKey := [32]byte{9, 9, 9}

	msg := WhisperMessage{RatchetKey: ratchetKey, Counter: 1, Ciphertext: []byte("x")}
	framed := EncodeWhisperMessage(msg, macKey, 0x33, senderIdentity, receiverIdentity)
	parsed, err := DecodeWhisperMessage(framed)
	require.NoError(t, err)

	assert.False(t, VerifyMAC(parsed, wrongKey, senderIdentity, receiverIdentity))
}

func TestDecodeWhisperMessageTooShort(t *testing.T) {
	_, err := DecodeWhisperMessage([]byte{0x33})
	assert.Error(t, err)
}

func TestDecodeWhisperMessageBadVersion(t *testing.T) {
	_, err := DecodeWhisperMessage(make([]byte, 20))
	assert.Error(t, err)
}

func TestPreKeyWhisperMessageRoundTrip(t *testing.T) {
	baseKey := mustPub(t)
	identityKey := mustPub(t)
	preKeyID := uint32(42)

	msg := PreKeyWhisperMessage{
		RegistrationID: 1234,
		PreKeyID:       &preKeyID,
		SignedPreKeyID: 5,
		BaseKey:        baseKey,
		IdentityKey:    identityKey,
		Message:        []byte("inner whisper message bytes"),
	}

	framed := EncodePreKeyWhisperMessage(msg, 0x33)
	parsed, err := DecodePreKeyWhisperMessage(framed)
	require.NoError(t, err)

	assert.Equal(t, msg.RegistrationID, parsed.RegistrationID)
	require.NotNil(t, parsed.PreKeyID)
	assert.Equal(t, *msg.PreKeyID, *parsed.PreKeyID)
	assert.Equal(t, msg.SignedPreKeyID, parsed.SignedPreKeyID)
	assert.Equal(t, msg.BaseKey, parsed.BaseKey)
	assert.Equal(t, msg.IdentityKey, parsed.IdentityKey)
	assert.Equal(t, msg.Message, parsed.Message)
}

func TestPreKeyWhisperMessageNoPreKeyID(t *testing.T) {
	baseKey := mustPub(t)
	identityKey := mustPub(t)

	msg := PreKeyWhisperMessage{
		RegistrationID: 1,
		SignedPreKeyID: 1,
		BaseKey:        baseKey,
		IdentityKey:    identityKey,
		Message:        []byte("m"),
	}

	framed := EncodePreKeyWhisperMessage(msg, 0x33)
	parsed, err := DecodePreKeyWhisperMessage(framed)
	require.NoError(t, err)
	assert.Nil(t, parsed.PreKeyID)
}
