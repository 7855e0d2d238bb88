// Package curve implements the Diffie-Hellman primitive (spec §4.1's
// dh) over the group backing crypto/key, generalized from the
// teacher's crypto/dh25519.
package curve

import (
	"errors"

	"ratchetcore/crypto/key"
)

// ErrInvalidInput is returned when the computed shared point does not
// marshal to exactly 32 bytes.
var ErrInvalidInput = errors.New("curve: invalid input")

// SharedSecret computes the DH output priv*pub, stripped of any
// type-prefix byte: 32 raw bytes, as spec §4.1 requires.
func SharedSecret(priv key.PrivateKey, pub key.PublicKey) ([32]byte, error) {
	privScalar, err := priv.ToScalar()
	if err != nil {
		return [32]byte{}, err
	}
	pubPoint, err := pub.ToPoint()
	if err != nil {
		return [32]byte{}, err
	}
	secretPoint := key.Suite.Point().Mul(privScalar, pubPoint)
	secretBytes, err := secretPoint.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	if len(secretBytes) != 32 {
		return [32]byte{}, ErrInvalidInput
	}
	var out [32]byte
	copy(out[:], secretBytes)
	return out, nil
}

// Generate returns a fresh ephemeral Diffie-Hellman keypair.
func Generate() (*key.Pair, error) {
	return key.Generate()
}
