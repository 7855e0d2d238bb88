package key

import "errors"

var (
	// ErrInvalidKeyLength is returned when a prefixed public key is
	// not exactly key.PrefixedSize bytes long.
	ErrInvalidKeyLength = errors.New("key: invalid key length")
	// ErrUnknownKeyType is returned when a prefixed public key does
	// not carry the expected DJBType byte.
	ErrUnknownKeyType = errors.New("key: unknown key type")
)
