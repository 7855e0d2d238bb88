// Package keys implements the identity/PreKey/SignedPreKey generation
// contract of spec §4.3, grounded on the teacher's protocol/x3dh key
// helpers, generalized to operate on the new crypto/key.Pair type.
package keys

import (
	"crypto/rand"
	"math/big"

	"ratchetcore/config"
	"ratchetcore/crypto/key"
	"ratchetcore/crypto/signature"
)

// IdentityKeyPair is a party's long-term Curve25519 identity keypair.
type IdentityKeyPair struct {
	key.Pair
}

// GenerateIdentityKeyPair returns a fresh identity keypair.
func GenerateIdentityKeyPair() (IdentityKeyPair, error) {
	pair, err := key.Generate()
	if err != nil {
		return IdentityKeyPair{}, err
	}
	return IdentityKeyPair{Pair: *pair}, nil
}

// GenerateRegistrationId returns a uniform value in [1, 16380], the
// 14-bit registration id space of spec §4.3.
func GenerateRegistrationId() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(config.RegistrationIDModulus))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()) + config.RegistrationIDFloor, nil
}

// PreKey is a one-time Curve25519 keypair (spec §3).
type PreKey struct {
	KeyID   uint32
	KeyPair key.Pair
}

// GeneratePreKey returns a fresh one-time PreKey with the given id.
func GeneratePreKey(keyID uint32) (PreKey, error) {
	pair, err := key.Generate()
	if err != nil {
		return PreKey{}, err
	}
	return PreKey{KeyID: keyID, KeyPair: *pair}, nil
}

// SignedPreKey is a medium-term keypair whose public part is signed by
// the owning identity key (spec §3).
type SignedPreKey struct {
	KeyID     uint32
	KeyPair   key.Pair
	Signature [signature.Size]byte
	Timestamp uint64
}

// GenerateSignedPreKey returns a fresh SignedPreKey signed by identity.
func GenerateSignedPreKey(identity IdentityKeyPair, signedKeyID uint32, timestamp uint64) (SignedPreKey, error) {
	pair, err := key.Generate()
	if err != nil {
		return SignedPreKey{}, err
	}
	prefixed := pair.Pub.Prefixed()
	sig, err := signature.Sign(identity.Priv, prefixed[:])
	if err != nil {
		return SignedPreKey{}, err
	}
	var out SignedPreKey
	out.KeyID = signedKeyID
	out.KeyPair = *pair
	copy(out.Signature[:], sig)
	out.Timestamp = timestamp
	return out, nil
}

// PreKeyBundle is the published material a remote party fetches to
// bootstrap a session against us (spec §3).
type PreKeyBundle struct {
	RegistrationID uint32
	IdentityKey    key.PublicKey
	SignedPreKey   struct {
		KeyID     uint32
		PublicKey key.PublicKey
		Signature [signature.Size]byte
	}
	// PreKey is nil when no one-time PreKey is currently available.
	PreKey *struct {
		KeyID     uint32
		PublicKey key.PublicKey
	}
}
