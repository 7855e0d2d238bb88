// Package ratchet implements the root-key/chain-key KDF chain and the
// DH and X3DH derivations of spec §4.5, grounded on the teacher's
// protocol/doubleratchet/utils.go (kdfRk/kdfCk) and
// protocol/x3dh/{alice,bob} (master-secret assembly), generalized from
// the teacher's AEAD-per-message scheme to the session's
// encrypt-then-MAC split (crypto/aes256 + wire's own MAC framing).
package ratchet

import (
	"ratchetcore/config"
	"ratchetcore/crypto/curve"
	hmacutil "ratchetcore/crypto/hmac"
	"ratchetcore/crypto/key"
	"ratchetcore/session"

	"ratchetcore/crypto"
	"ratchetcore/crypto/hkdf"
)

var zeroSalt32 = make([]byte, 32)

// RootKDF implements spec §4.5's root-key KDF: HKDF over the DH
// output, salted with the current root key.
func RootKDF(rootKey [32]byte, dhOutput [32]byte) (newRootKey, newChainKey [32]byte, err error) {
	out, err := hkdf.Derive(dhOutput[:], rootKey[:], config.RootKDFInfo, 64)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	copy(newRootKey[:], out[:32])
	copy(newChainKey[:], out[32:64])
	return newRootKey, newChainKey, nil
}

// ChainStep implements spec §4.5's chain-key step: derive this
// counter's raw message key and the next chain key via two fixed HMAC
// inputs.
func ChainStep(ck session.ChainKey) (nextChainKey session.ChainKey, messageKeyRaw [32]byte, err error) {
	raw := hmacutil.Hash(crypto.DefaultHashFunc, ck.Key[:], []byte{0x01})
	nextRaw := hmacutil.Hash(crypto.DefaultHashFunc, ck.Key[:], []byte{0x02})

	copy(messageKeyRaw[:], raw)
	nextChainKey.Counter = ck.Counter + 1
	copy(nextChainKey.Key[:], nextRaw)
	return nextChainKey, messageKeyRaw, nil
}

// DeriveMessageKey implements spec §4.5's message-key derivation:
// HKDF-expand the chain step's raw key into cipherKey/macKey/iv.
func DeriveMessageKey(counter uint32, raw [32]byte) (session.MessageKey, error) {
	out, err := hkdf.Derive(raw[:], zeroSalt32, config.MessageKeyInfo, 80)
	if err != nil {
		return session.MessageKey{}, err
	}
	var mk session.MessageKey
	mk.Counter = counter
	copy(mk.CipherKey[:], out[:32])
	copy(mk.MacKey[:], out[32:64])
	copy(mk.IV[:], out[64:80])
	return mk, nil
}

// X3DHInitiator computes Alice's initial root/chain key pair per spec
// §4.5: masterSecret = 0xFF*32 || DH(IA,SPK) || DH(EA,IB) || DH(EA,SPK)
// [ || DH(EA,OPK) ].
func X3DHInitiator(identityPriv key.PrivateKey, ephemeralPriv key.PrivateKey, remoteIdentityPub key.PublicKey, remoteSignedPreKeyPub key.PublicKey, remoteOneTimePreKeyPub *key.PublicKey) (rootKey, chainKey [32]byte, err error) {
	dh1, err := curve.SharedSecret(identityPriv, remoteSignedPreKeyPub)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	dh2, err := curve.SharedSecret(ephemeralPriv, remoteIdentityPub)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	dh3, err := curve.SharedSecret(ephemeralPriv, remoteSignedPreKeyPub)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}

	master := make([]byte, 0, 32*4+32)
	master = append(master, config.X3DHDomainSeparator[:]...)
	master = append(master, dh1[:]...)
	master = append(master, dh2[:]...)
	master = append(master, dh3[:]...)

	if remoteOneTimePreKeyPub != nil {
		dh4, err := curve.SharedSecret(ephemeralPriv, *remoteOneTimePreKeyPub)
		if err != nil {
			return [32]byte{}, [32]byte{}, err
		}
		master = append(master, dh4[:]...)
	}

	return deriveInitialSecrets(master)
}

// X3DHResponder computes Bob's mirror of X3DHInitiator: the same four
// DH products with each side's role swapped so the results match.
func X3DHResponder(identityPriv key.PrivateKey, signedPreKeyPriv key.PrivateKey, oneTimePreKeyPriv *key.PrivateKey, remoteIdentityPub key.PublicKey, remoteEphemeralPub key.PublicKey) (rootKey, chainKey [32]byte, err error) {
	dh1, err := curve.SharedSecret(signedPreKeyPriv, remoteIdentityPub)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	dh2, err := curve.SharedSecret(identityPriv, remoteEphemeralPub)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	dh3, err := curve.SharedSecret(signedPreKeyPriv, remoteEphemeralPub)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}

	master := make([]byte, 0, 32*4+32)
	master = append(master, config.X3DHDomainSeparator[:]...)
	master = append(master, dh1[:]...)
	master = append(master, dh2[:]...)
	master = append(master, dh3[:]...)

	if oneTimePreKeyPriv != nil {
		dh4, err := curve.SharedSecret(*oneTimePreKeyPriv, remoteEphemeralPub)
		if err != nil {
			return [32]byte{}, [32]byte{}, err
		}
		master = append(master, dh4[:]...)
	}

	return deriveInitialSecrets(master)
}

func deriveInitialSecrets(masterSecret []byte) (rootKey, chainKey [32]byte, err error) {
	out, err := hkdf.Derive(masterSecret, zeroSalt32, config.X3DHInfo, 64)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	copy(rootKey[:], out[:32])
	copy(chainKey[:], out[32:64])
	return rootKey, chainKey, nil
}

// BootstrapSendingChain derives a fresh sending chain when a session
// has none yet (spec §4.5's "sender has no sending chain" trigger): a
// single DH against the session's known remote ratchet key, folded
// into the root key. Used for a session's very first outbound message
// on the side that did not receive an immediate X3DH chain key for
// that direction (the bundle's signed-prekey owner).
func BootstrapSendingChain(current session.CurrentRatchet) (next session.CurrentRatchet, sendingChainKey session.ChainKey, err error) {
	newEph, err := key.Generate()
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, err
	}
	dh, err := curve.SharedSecret(newEph.Priv, current.LastRemoteEphemeralKey)
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, err
	}
	newRoot, chainRaw, err := RootKDF(current.RootKey, dh)
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, err
	}
	next = current
	next.RootKey = newRoot
	next.EphemeralKeyPair = *newEph
	return next, session.ChainKey{Key: chainRaw}, nil
}

// DHRatchetStep performs the sender-initiated DH ratchet of spec
// §4.5: it closes out the receiving side against remoteEph, then
// opens a fresh sending chain, returning the session's new current
// ratchet plus the two freshly keyed chains. priorSendingCounter is
// the count of messages sent on the prior sending chain (spec §4.5
// step 4), recorded as the new ratchet's PreviousCounter so the peer
// knows how far to fill skipped keys on that chain.
func DHRatchetStep(current session.CurrentRatchet, remoteEph key.PublicKey, priorSendingCounter uint32) (next session.CurrentRatchet, receivingChainKey, sendingChainKey session.ChainKey, err error) {
	dh1, err := curve.SharedSecret(current.EphemeralKeyPair.Priv, remoteEph)
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, session.ChainKey{}, err
	}
	rootKey1, recvRaw, err := RootKDF(current.RootKey, dh1)
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, session.ChainKey{}, err
	}

	newEph, err := key.Generate()
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, session.ChainKey{}, err
	}

	dh2, err := curve.SharedSecret(newEph.Priv, remoteEph)
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, session.ChainKey{}, err
	}
	rootKey2, sendRaw, err := RootKDF(rootKey1, dh2)
	if err != nil {
		return session.CurrentRatchet{}, session.ChainKey{}, session.ChainKey{}, err
	}

	next = session.CurrentRatchet{
		RootKey:                rootKey2,
		EphemeralKeyPair:       *newEph,
		LastRemoteEphemeralKey: remoteEph,
		PreviousCounter:        priorSendingCounter,
	}
	receivingChainKey = session.ChainKey{Key: recvRaw}
	sendingChainKey = session.ChainKey{Key: sendRaw}
	return next, receivingChainKey, sendingChainKey, nil
}
