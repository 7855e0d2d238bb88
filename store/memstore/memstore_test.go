package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratchetcore/keys"
	"ratchetcore/session"
	"ratchetcore/store"
)

func TestLoadSessionNotFound(t *testing.T) {
	ctx := context.Background()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	s := New(1, identity)

	_, err = s.LoadSession(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreAndLoadSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	s := New(1, identity)

	record := session.NewRecord()
	require.NoError(t, s.StoreSession(ctx, "bob.1", record))

	got, err := s.LoadSession(ctx, "bob.1")
	require.NoError(t, err)
	assert.Same(t, record, got)
}

func TestIsTrustedIdentityTrustOnFirstUse(t *testing.T) {
	ctx := context.Background()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	s := New(1, identity)

	bobKey, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)

	trusted, err := s.IsTrustedIdentity(ctx, "bob.1", bobKey.Pub)
	require.NoError(t, err)
	assert.True(t, trusted, "unrecorded identity should be trusted on first use")

	require.NoError(t, s.SaveIdentity(ctx, "bob.1", bobKey.Pub))

	trusted, err = s.IsTrustedIdentity(ctx, "bob.1", bobKey.Pub)
	require.NoError(t, err)
	assert.True(t, trusted)

	otherKey, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	trusted, err = s.IsTrustedIdentity(ctx, "bob.1", otherKey.Pub)
	require.NoError(t, err)
	assert.False(t, trusted, "a changed identity key must not be trusted silently")
}

func TestPreKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	s := New(1, identity)

	pk, err := keys.GeneratePreKey(3)
	require.NoError(t, err)
	require.NoError(t, s.PutPreKey(ctx, pk))

	got, err := s.LoadPreKey(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, pk.KeyPair.Pub, got.KeyPair.Pub)

	require.NoError(t, s.RemovePreKey(ctx, 3))
	_, err = s.LoadPreKey(ctx, 3)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignedPreKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	s := New(1, identity)

	spk, err := keys.GenerateSignedPreKey(identity, 1, 1234)
	require.NoError(t, err)
	require.NoError(t, s.PutSignedPreKey(ctx, spk))

	got, err := s.LoadSignedPreKey(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, spk.Signature, got.Signature)

	_, err = s.LoadSignedPreKey(ctx, 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOurIdentityAndRegistrationID(t *testing.T) {
	ctx := context.Background()
	identity, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	s := New(42, identity)

	regID, err := s.GetOurRegistrationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), regID)

	got, err := s.GetOurIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}
