// Package sessionbuilder implements the asynchronous X3DH bootstrap of
// spec §4.6, grounded on the teacher's protocol/x3dh/{alice,bob}
// packages (which split the same initiator/responder roles across two
// packages keyed on ad hoc structs), generalized onto session.Record
// and store.Store.
package sessionbuilder

import (
	"context"

	"ratchetcore/crypto/key"
	"ratchetcore/crypto/signature"
	"ratchetcore/keys"
	"ratchetcore/ratchet"
	"ratchetcore/session"
	"ratchetcore/signalerr"
	"ratchetcore/store"
)

// Builder bootstraps sessions for one remote address against a store
// (spec §6.2's SessionBuilder(store, addr)).
type Builder struct {
	Store store.Store
	Addr  string
}

// New returns a Builder bound to addr.
func New(s store.Store, addr string) *Builder {
	return &Builder{Store: s, Addr: addr}
}

// InitOutgoing bootstraps a new outgoing session from a remote PreKey
// bundle (spec §4.6).
func (b *Builder) InitOutgoing(ctx context.Context, bundle keys.PreKeyBundle, now int64) error {
	prefixedSPK := bundle.SignedPreKey.PublicKey.Prefixed()
	if !signature.Verify(bundle.IdentityKey, prefixedSPK[:], bundle.SignedPreKey.Signature[:]) {
		return &signalerr.InvalidSignatureError{Addr: b.Addr}
	}

	trusted, err := b.Store.IsTrustedIdentity(ctx, b.Addr, bundle.IdentityKey)
	if err != nil {
		return &signalerr.StoreError{Cause: err}
	}
	if !trusted {
		return &signalerr.UntrustedIdentityKeyError{Addr: b.Addr}
	}

	ourIdentity, err := b.Store.GetOurIdentity(ctx)
	if err != nil {
		return &signalerr.StoreError{Cause: err}
	}

	baseKey, err := key.Generate()
	if err != nil {
		return err
	}

	var oneTimePub *key.PublicKey
	if bundle.PreKey != nil {
		oneTimePub = &bundle.PreKey.PublicKey
	}

	rootKey, chainKey, err := ratchet.X3DHInitiator(
		ourIdentity.Priv, baseKey.Priv,
		bundle.IdentityKey, bundle.SignedPreKey.PublicKey, oneTimePub,
	)
	if err != nil {
		return err
	}

	sess := session.NewSession()
	sess.RegistrationID = bundle.RegistrationID
	sess.CurrentRatchet = session.CurrentRatchet{
		RootKey:                rootKey,
		EphemeralKeyPair:       *baseKey,
		LastRemoteEphemeralKey: bundle.SignedPreKey.PublicKey,
	}
	sess.IndexInfo = session.IndexInfo{
		RemoteIdentityKey: bundle.IdentityKey,
		BaseKey:           baseKey.Pub.Prefixed(),
		BaseKeyType:       session.BaseKeyOurs,
		Closed:            -1,
	}
	var preKeyID *uint32
	if bundle.PreKey != nil {
		id := bundle.PreKey.KeyID
		preKeyID = &id
	}
	sess.PendingPreKey = &session.PendingPreKey{
		PreKeyID:    preKeyID,
		SignedKeyID: bundle.SignedPreKey.KeyID,
		BaseKey:     baseKey.Pub.Prefixed(),
	}

	sendingChain := sess.GetChain(baseKey.Pub, true)
	sendingChain.ChainKey = session.ChainKey{Key: chainKey}
	priv := baseKey.Priv
	sendingChain.EphemeralPriv = &priv

	record, err := loadOrCreateRecord(ctx, b.Store, b.Addr)
	if err != nil {
		return err
	}
	record.SetSession(sess, now)

	if err := b.Store.StoreSession(ctx, b.Addr, record); err != nil {
		return &signalerr.StoreError{Cause: err}
	}
	return nil
}

// InitIncoming bootstraps (or reuses) a session from an inbound
// PreKeyWhisperMessage, invoked by the session cipher before it
// attempts to decrypt the embedded WhisperMessage (spec §4.6). Per
// spec §7, a PreKey message that bootstraps a session but then fails
// its embedded MAC must leave the store unmodified, so InitIncoming
// only builds the record in memory: it does NOT call StoreSession.
// The caller must verify/decrypt the embedded WhisperMessage against
// the returned session first, and only then persist the same record
// it gets back here — reusing these exact objects, not a fresh
// LoadSession, so the decrypt's chain-counter advance and skipped-key
// caching aren't lost on a store that doesn't alias in memory (e.g.
// store/redisstore). It also returns the consumed one-time preKeyId,
// if any, which the caller must only tell the store to forget after a
// successful decrypt.
func (b *Builder) InitIncoming(ctx context.Context, remoteIdentity key.PublicKey, remoteBaseKey key.PublicKey, signedPreKeyID uint32, preKeyID *uint32, registrationID uint32, now int64) (record *session.Record, sess *session.Session, consumedPreKeyID *uint32, err error) {
	trusted, err := b.Store.IsTrustedIdentity(ctx, b.Addr, remoteIdentity)
	if err != nil {
		return nil, nil, nil, &signalerr.StoreError{Cause: err}
	}
	if !trusted {
		return nil, nil, nil, &signalerr.UntrustedIdentityKeyError{Addr: b.Addr}
	}

	record, err = loadOrCreateRecord(ctx, b.Store, b.Addr)
	if err != nil {
		return nil, nil, nil, err
	}

	prefixedBase := remoteBaseKey.Prefixed()
	if existing := record.GetSessionByBaseKey(prefixedBase); existing != nil {
		return record, existing, nil, nil
	}

	signedPreKey, err := b.Store.LoadSignedPreKey(ctx, signedPreKeyID)
	if err != nil {
		return nil, nil, nil, &signalerr.InvalidKeyIdError{KeyID: signedPreKeyID}
	}

	var oneTimePreKey *keys.PreKey
	if preKeyID != nil {
		oneTimePreKey, err = b.Store.LoadPreKey(ctx, *preKeyID)
		if err != nil {
			return nil, nil, nil, &signalerr.InvalidKeyIdError{KeyID: *preKeyID}
		}
	}

	ourIdentity, err := b.Store.GetOurIdentity(ctx)
	if err != nil {
		return nil, nil, nil, &signalerr.StoreError{Cause: err}
	}

	var oneTimePriv *key.PrivateKey
	if oneTimePreKey != nil {
		p := oneTimePreKey.KeyPair.Priv
		oneTimePriv = &p
	}

	rootKey, chainKey, err := ratchet.X3DHResponder(
		ourIdentity.Priv, signedPreKey.KeyPair.Priv, oneTimePriv,
		remoteIdentity, remoteBaseKey,
	)
	if err != nil {
		return nil, nil, nil, err
	}

	newSess := session.NewSession()
	newSess.RegistrationID = registrationID
	newSess.CurrentRatchet = session.CurrentRatchet{
		RootKey:                rootKey,
		EphemeralKeyPair:       signedPreKey.KeyPair,
		LastRemoteEphemeralKey: remoteBaseKey,
	}
	newSess.IndexInfo = session.IndexInfo{
		RemoteIdentityKey: remoteIdentity,
		BaseKey:           prefixedBase,
		BaseKeyType:       session.BaseKeyTheirs,
		Closed:            -1,
	}

	receivingChain := newSess.GetChain(remoteBaseKey, true)
	receivingChain.ChainKey = session.ChainKey{Key: chainKey}

	record.SetSession(newSess, now)

	return record, newSess, preKeyID, nil
}

func loadOrCreateRecord(ctx context.Context, s store.Store, addr string) (*session.Record, error) {
	record, err := s.LoadSession(ctx, addr)
	if err == store.ErrNotFound {
		return session.NewRecord(), nil
	}
	if err != nil {
		return nil, &signalerr.StoreError{Cause: err}
	}
	return record, nil
}
