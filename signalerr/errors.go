// Package signalerr defines the error taxonomy of spec §7, as typed
// errors so callers can distinguish fatal-before-mutation failures
// from per-message decrypt failures via errors.As, generalized from
// the teacher's protocol/doubleratchet/errors.go (which had three bare
// sentinel errors with no structure).
package signalerr

import "fmt"

// UntrustedIdentityKeyError: the store rejected a remote identity
// during bootstrap or PreKey-message receipt. Fatal; no state mutation.
type UntrustedIdentityKeyError struct {
	Addr string
}

func (e *UntrustedIdentityKeyError) Error() string {
	return fmt.Sprintf("signalerr: untrusted identity key for %s", e.Addr)
}

// InvalidSignatureError: a SignedPreKey signature failed verification.
// Fatal; no state mutation.
type InvalidSignatureError struct {
	Addr string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("signalerr: invalid signed-prekey signature from %s", e.Addr)
}

// InvalidKeyIdError: an inbound PreKey message names an unknown
// preKeyId or signedPreKeyId. Fatal for this operation; no state mutation.
type InvalidKeyIdError struct {
	KeyID uint32
}

func (e *InvalidKeyIdError) Error() string {
	return fmt.Sprintf("signalerr: unknown key id %d", e.KeyID)
}

// NoSessionError: encrypt/decrypt was attempted against an address
// with no record or no open session. Fatal.
type NoSessionError struct {
	Addr string
}

func (e *NoSessionError) Error() string {
	return fmt.Sprintf("signalerr: no session for %s", e.Addr)
}

// MessageCounterError: the counter gap exceeded the skip cap, or a
// referenced skipped key was missing (already consumed or evicted).
// Fatal for this message only; other sessions may still be tried.
type MessageCounterError struct {
	Reason string
}

func (e *MessageCounterError) Error() string {
	return fmt.Sprintf("signalerr: message counter error: %s", e.Reason)
}

// MACError: the message authentication code did not verify. Fatal for
// this message only.
type MACError struct{}

func (e *MACError) Error() string { return "signalerr: MAC verification failed" }

// DecryptError: AES padding or otherwise malformed ciphertext. Same
// handling as MACError.
type DecryptError struct {
	Cause error
}

func (e *DecryptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("signalerr: decrypt failed: %v", e.Cause)
	}
	return "signalerr: decrypt failed"
}

func (e *DecryptError) Unwrap() error { return e.Cause }

// StructuralError: a wire frame failed to parse (bad version, wrong
// field lengths). Fatal for this message.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("signalerr: malformed wire message: %s", e.Reason)
}

// StoreError wraps an underlying store failure, propagated unchanged.
type StoreError struct {
	Cause error
}

func (e *StoreError) Error() string { return fmt.Sprintf("signalerr: store error: %v", e.Cause) }

func (e *StoreError) Unwrap() error { return e.Cause }
