// Package hkdf implements the hkdf primitive of spec §4.1: HMAC-SHA256
// based HKDF-Extract-then-Expand per RFC 5869, generalized from the
// teacher's crypto/hkdf (which hard-coded a single 32-byte output and
// a package-level info string).
package hkdf

import (
	"io"

	"golang.org/x/crypto/hkdf"

	"ratchetcore/crypto"
)

// ZeroSalt is the default 32-byte salt spec §4.1 specifies when the
// caller omits one.
var ZeroSalt = make([]byte, 32)

// Derive runs HKDF-SHA256 over ikm with the given salt and info,
// returning exactly length bytes. Passing a nil salt uses ZeroSalt.
func Derive(ikm, salt, info []byte, length int) ([]byte, error) {
	if salt == nil {
		salt = ZeroSalt
	}
	reader := hkdf.New(crypto.DefaultHashFunc, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

