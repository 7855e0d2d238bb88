// Package memstore is an in-memory store.Store, the reference
// implementation used by the demo and by package tests throughout the
// core, grounded on the teacher's client/chatapp.go in-process key
// bookkeeping (which kept a similar bare map of loaded keys, generalized
// here into the full store.Store contract with mutex-guarded access
// the way companyzero-bisonrelay's in-memory session state is kept).
package memstore

import (
	"context"
	"sync"

	"ratchetcore/crypto/key"
	"ratchetcore/keys"
	"ratchetcore/session"
	"ratchetcore/store"
)

// Store is a goroutine-safe in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	sessions   map[string]*session.Record
	trusted    map[string]key.PublicKey
	preKeys    map[uint32]*keys.PreKey
	signedKeys map[uint32]*keys.SignedPreKey

	registrationID uint32
	identity       keys.IdentityKeyPair
}

// New returns an empty Store seeded with our own identity and
// registration id, as generated at startup by cmd/genkeys or cmd/demo.
func New(registrationID uint32, identity keys.IdentityKeyPair) *Store {
	return &Store{
		sessions:       make(map[string]*session.Record),
		trusted:        make(map[string]key.PublicKey),
		preKeys:        make(map[uint32]*keys.PreKey),
		signedKeys:     make(map[uint32]*keys.SignedPreKey),
		registrationID: registrationID,
		identity:       identity,
	}
}

func (s *Store) LoadSession(_ context.Context, addr string) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) StoreSession(_ context.Context, addr string, record *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[addr] = record
	return nil
}

// IsTrustedIdentity implements trust-on-first-use: an address with no
// recorded identity trusts any key offered and records it; a
// previously recorded identity must match exactly.
func (s *Store) IsTrustedIdentity(_ context.Context, addr string, identityKey key.PublicKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.trusted[addr]
	if !ok {
		return true, nil
	}
	return existing.Equals(identityKey), nil
}

func (s *Store) SaveIdentity(_ context.Context, addr string, identityKey key.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[addr] = identityKey
	return nil
}

func (s *Store) LoadPreKey(_ context.Context, keyID uint32) (*keys.PreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk, ok := s.preKeys[keyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return pk, nil
}

func (s *Store) RemovePreKey(_ context.Context, keyID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.preKeys, keyID)
	return nil
}

func (s *Store) LoadSignedPreKey(_ context.Context, keyID uint32) (*keys.SignedPreKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spk, ok := s.signedKeys[keyID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return spk, nil
}

func (s *Store) GetOurRegistrationID(_ context.Context) (uint32, error) {
	return s.registrationID, nil
}

func (s *Store) GetOurIdentity(_ context.Context) (keys.IdentityKeyPair, error) {
	return s.identity, nil
}

// PutPreKey seeds a one-time PreKey for later consumption, used by
// cmd/demo and by tests building a bundle to bootstrap against. The
// ctx/error shape matches redisstore's so both satisfy the same
// seeding interface for cmd/demo.
func (s *Store) PutPreKey(_ context.Context, pk keys.PreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preKeys[pk.KeyID] = &pk
	return nil
}

// PutSignedPreKey seeds a SignedPreKey.
func (s *Store) PutSignedPreKey(_ context.Context, spk keys.SignedPreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedKeys[spk.KeyID] = &spk
	return nil
}
