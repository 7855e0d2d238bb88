// Package crypto holds the shared primitive constants and the hash
// function every KDF/MAC in the core is keyed on.
package crypto

import "crypto/sha256"

// DefaultHashFunc is the hash function backing HKDF and HMAC
// throughout the core, per spec §4.1.
var DefaultHashFunc = sha256.New

// HMACSHA256Size is the output size in bytes of DefaultHashFunc.
const HMACSHA256Size = 32
