// Package signature implements the XEdDSA-contract sign/verify
// primitive of spec §4.1: a 64-byte signature over an identity
// keypair, using the same group as crypto/curve's DH so the identity
// key serves both purposes, generalized from the teacher's
// crypto/signer_schnorr.
package signature

import (
	"go.dedis.ch/kyber/v4/sign/schnorr"

	"ratchetcore/crypto/key"
)

// Size is the length in bytes of a signature produced by Sign.
const Size = 64

// Sign returns a signature over msg under identityPriv. Per spec
// §4.1 this must never panic on malformed input; Sign only fails if
// the private scalar itself fails to parse, which cannot happen for
// a PrivateKey obtained through this package.
func Sign(identityPriv key.PrivateKey, msg []byte) ([]byte, error) {
	scalar, err := identityPriv.ToScalar()
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(key.Suite, scalar, msg)
}

// Verify reports whether sig is a valid signature over msg under
// identityPub. It returns false (never panics) on any structural or
// mathematical failure, as spec §4.1 requires.
func Verify(identityPub key.PublicKey, msg, sig []byte) bool {
	point, err := identityPub.ToPoint()
	if err != nil {
		return false
	}
	if len(sig) != Size {
		return false
	}
	return schnorr.Verify(key.Suite, point, msg, sig) == nil
}
