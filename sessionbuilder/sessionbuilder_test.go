package sessionbuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratchetcore/crypto/key"
	"ratchetcore/keys"
	"ratchetcore/signalerr"
	"ratchetcore/store/memstore"
)

func newBundle(t *testing.T, bobID keys.IdentityKeyPair, bobStore *memstore.Store, signedKeyID, preKeyID uint32, withOneTime bool) keys.PreKeyBundle {
	t.Helper()
	ctx := context.Background()

	spk, err := keys.GenerateSignedPreKey(bobID, signedKeyID, 100)
	require.NoError(t, err)
	require.NoError(t, bobStore.PutSignedPreKey(ctx, spk))

	regID, err := bobStore.GetOurRegistrationID(ctx)
	require.NoError(t, err)

	bundle := keys.PreKeyBundle{RegistrationID: regID, IdentityKey: bobID.Pub}
	bundle.SignedPreKey.KeyID = spk.KeyID
	bundle.SignedPreKey.PublicKey = spk.KeyPair.Pub
	bundle.SignedPreKey.Signature = spk.Signature

	if withOneTime {
		pk, err := keys.GeneratePreKey(preKeyID)
		require.NoError(t, err)
		require.NoError(t, bobStore.PutPreKey(ctx, pk))
		bundle.PreKey = &struct {
			KeyID     uint32
			PublicKey key.PublicKey
		}{KeyID: pk.KeyID, PublicKey: pk.KeyPair.Pub}
	}
	return bundle
}

func TestInitOutgoingRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	aliceID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	bobID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	aliceStore := memstore.New(1, aliceID)
	bobStore := memstore.New(2, bobID)

	bundle := newBundle(t, bobID, bobStore, 1, 1, true)
	bundle.SignedPreKey.Signature[0] ^= 0xFF

	builder := New(aliceStore, "bob.1")
	err = builder.InitOutgoing(ctx, bundle, 1)
	var sigErr *signalerr.InvalidSignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestInitOutgoingRejectsUntrustedIdentity(t *testing.T) {
	ctx := context.Background()
	aliceID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	bobID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	otherID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	aliceStore := memstore.New(1, aliceID)
	bobStore := memstore.New(2, bobID)

	require.NoError(t, aliceStore.SaveIdentity(ctx, "bob.1", otherID.Pub))

	bundle := newBundle(t, bobID, bobStore, 1, 1, true)
	builder := New(aliceStore, "bob.1")
	err = builder.InitOutgoing(ctx, bundle, 1)
	var untrusted *signalerr.UntrustedIdentityKeyError
	assert.ErrorAs(t, err, &untrusted)
}

func TestInitOutgoingBuildsOpenSessionWithPendingPreKey(t *testing.T) {
	ctx := context.Background()
	aliceID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	bobID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	aliceStore := memstore.New(1, aliceID)
	bobStore := memstore.New(2, bobID)

	bundle := newBundle(t, bobID, bobStore, 1, 5, true)
	builder := New(aliceStore, "bob.1")
	require.NoError(t, builder.InitOutgoing(ctx, bundle, 1))

	record, err := aliceStore.LoadSession(ctx, "bob.1")
	require.NoError(t, err)
	sess := record.GetOpenSession()
	require.NotNil(t, sess)
	require.NotNil(t, sess.PendingPreKey)
	assert.Equal(t, uint32(5), *sess.PendingPreKey.PreKeyID)
}

func TestInitIncomingIsIdempotentForSameBaseKey(t *testing.T) {
	ctx := context.Background()
	aliceID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	bobID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	aliceStore := memstore.New(1, aliceID)
	bobStore := memstore.New(2, bobID)
	require.NoError(t, bobStore.SaveIdentity(ctx, "alice.1", aliceID.Pub))

	bundle := newBundle(t, bobID, bobStore, 1, 9, true)
	aliceBuilder := New(aliceStore, "bob.1")
	require.NoError(t, aliceBuilder.InitOutgoing(ctx, bundle, 1))

	aliceRecord, err := aliceStore.LoadSession(ctx, "bob.1")
	require.NoError(t, err)
	aliceSess := aliceRecord.GetOpenSession()
	require.NotNil(t, aliceSess)
	baseKey := aliceSess.CurrentRatchet.EphemeralKeyPair.Pub

	bobBuilder := New(bobStore, "alice.1")
	firstRecord, firstSess, consumed, err := bobBuilder.InitIncoming(ctx, aliceID.Pub, baseKey, 1, &bundle.PreKey.KeyID, 7, 2)
	require.NoError(t, err)
	require.NotNil(t, consumed)
	// InitIncoming no longer persists on its own (spec §7: a session must
	// not be committed before its embedded message's MAC is verified), so
	// mimic the caller's post-decrypt commit before bootstrapping again.
	require.NoError(t, bobStore.StoreSession(ctx, "alice.1", firstRecord))

	_, secondSess, consumed2, err := bobBuilder.InitIncoming(ctx, aliceID.Pub, baseKey, 1, &bundle.PreKey.KeyID, 7, 3)
	require.NoError(t, err)
	assert.Same(t, firstSess, secondSess, "a repeated bootstrap for the same base key must reuse the existing session")
	assert.Nil(t, consumed2, "a replayed bootstrap must not re-report the prekey as consumed")
}

func TestInitIncomingRejectsUnknownSignedPreKey(t *testing.T) {
	ctx := context.Background()
	aliceID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	bobID, err := keys.GenerateIdentityKeyPair()
	require.NoError(t, err)
	aliceBaseKey, err := key.Generate()
	require.NoError(t, err)
	bobStore := memstore.New(2, bobID)
	require.NoError(t, bobStore.SaveIdentity(ctx, "alice.1", aliceID.Pub))

	builder := New(bobStore, "alice.1")
	_, _, _, err = builder.InitIncoming(ctx, aliceID.Pub, aliceBaseKey.Pub, 999, nil, 7, 1)
	var keyErr *signalerr.InvalidKeyIdError
	assert.ErrorAs(t, err, &keyErr)
}
