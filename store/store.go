// Package store defines the external collaborator of spec §6.1: the
// persistence boundary the core calls out to for session records,
// identity trust decisions, and PreKey/SignedPreKey material.
// Generalized from gwillem-signal-go's store.go interface shape and
// RadicalApp's libsignal-protocol-go split Identity/PreKey/Session
// store interfaces into one context-aware interface, as the rest of
// the retrieved pack's storage layers (go-redis et al.) expect.
package store

import (
	"context"

	"ratchetcore/crypto/key"
	"ratchetcore/keys"
	"ratchetcore/session"
)

// Store is the full persistence contract the session builder and
// session cipher depend on (spec §6.1).
type Store interface {
	LoadSession(ctx context.Context, addr string) (*session.Record, error)
	StoreSession(ctx context.Context, addr string, record *session.Record) error

	IsTrustedIdentity(ctx context.Context, addr string, identityKey key.PublicKey) (bool, error)
	SaveIdentity(ctx context.Context, addr string, identityKey key.PublicKey) error

	LoadPreKey(ctx context.Context, keyID uint32) (*keys.PreKey, error)
	RemovePreKey(ctx context.Context, keyID uint32) error

	LoadSignedPreKey(ctx context.Context, keyID uint32) (*keys.SignedPreKey, error)

	GetOurRegistrationID(ctx context.Context) (uint32, error)
	GetOurIdentity(ctx context.Context) (keys.IdentityKeyPair, error)
}

// ErrNotFound is returned by Load* methods when no record exists for
// the requested key, distinct from a genuine store failure.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
