// Package key implements the Curve25519-family keypair used as the
// single identity/ephemeral/prekey type throughout the core: the same
// bytes serve Diffie-Hellman (crypto/curve) and signing
// (crypto/signature), mirroring the reuse XEdDSA gives a Curve25519
// identity key over classical Ed25519.
package key

import (
	"bytes"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
)

// DJBType is the type byte prepended to a public key when it is
// transmitted inside a wire message (spec: "type-prefixed" 33-byte form).
const DJBType byte = 0x05

const (
	// Size is the length in bytes of a raw (unprefixed) public or
	// private key.
	Size = 32
	// PrefixedSize is the length of a key with its DJBType byte.
	PrefixedSize = Size + 1
)

// Suite is the group all keypairs in the core are drawn from.
var Suite = suites.MustFind("Ed25519")

// PrivateKey is a 32-byte scalar.
type PrivateKey [Size]byte

// PublicKey is a 32-byte group element.
type PublicKey [Size]byte

// Pair is a Diffie-Hellman / signing keypair.
type Pair struct {
	Priv PrivateKey
	Pub  PublicKey
}

// Generate returns a fresh random keypair.
func Generate() (*Pair, error) {
	priv, err := New()
	if err != nil {
		return nil, err
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, err
	}
	return &Pair{Priv: priv, Pub: pub}, nil
}

// New returns a fresh random private key.
func New() (PrivateKey, error) {
	scalar := Suite.Scalar().Pick(Suite.RandomStream())
	b, err := scalar.MarshalBinary()
	if err != nil {
		return PrivateKey{}, err
	}
	var priv PrivateKey
	copy(priv[:], b)
	return priv, nil
}

// Public derives the public key for a private key.
func (priv PrivateKey) Public() (PublicKey, error) {
	scalar, err := priv.ToScalar()
	if err != nil {
		return PublicKey{}, err
	}
	point := Suite.Point().Mul(scalar, nil)
	b, err := point.MarshalBinary()
	if err != nil {
		return PublicKey{}, err
	}
	var pub PublicKey
	copy(pub[:], b)
	return pub, nil
}

// ToScalar parses the private key into a kyber.Scalar for low-level
// group arithmetic (crypto/curve, crypto/signature).
func (priv PrivateKey) ToScalar() (kyber.Scalar, error) {
	s := Suite.Scalar()
	if err := s.UnmarshalBinary(priv[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// ToPoint parses the public key into a kyber.Point.
func (pub PublicKey) ToPoint() (kyber.Point, error) {
	p := Suite.Point()
	if err := p.UnmarshalBinary(pub[:]); err != nil {
		return nil, err
	}
	return p, nil
}

// Prefixed returns the 33-byte type-prefixed form used inside wire messages.
func (pub PublicKey) Prefixed() [PrefixedSize]byte {
	var out [PrefixedSize]byte
	out[0] = DJBType
	copy(out[1:], pub[:])
	return out
}

// ParsePrefixed strips and validates the DJBType byte from a 33-byte
// wire-format public key.
func ParsePrefixed(b []byte) (PublicKey, error) {
	if len(b) != PrefixedSize {
		return PublicKey{}, ErrInvalidKeyLength
	}
	if b[0] != DJBType {
		return PublicKey{}, ErrUnknownKeyType
	}
	var pub PublicKey
	copy(pub[:], b[1:])
	return pub, nil
}

// Equals reports whether two public keys are identical.
func (pub PublicKey) Equals(other PublicKey) bool {
	return bytes.Equal(pub[:], other[:])
}

// Zero overwrites the private key material in place.
func (priv *PrivateKey) Zero() {
	for i := range priv {
		priv[i] = 0
	}
}
