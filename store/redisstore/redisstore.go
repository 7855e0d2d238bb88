// Package redisstore is a go-redis-backed store.Store, generalized
// from the teacher's server/server.go (which used redis Set/Get/RPush
// against a single public-key and message-queue keyspace) into a full
// session/identity/prekey persistence layer. Sessions and keys are
// JSON-encoded, matching the teacher's own "serialize the struct to
// JSON before storing in Redis" convention.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ratchetcore/crypto/key"
	"ratchetcore/keys"
	"ratchetcore/session"
	"ratchetcore/store"
)

const (
	sessionKeyFmt    = "ratchetcore:session:%s"
	trustedKeyFmt    = "ratchetcore:trusted:%s"
	preKeyFmt        = "ratchetcore:prekey:%d"
	signedPreKeyFmt  = "ratchetcore:signedprekey:%d"
	registrationIDKey = "ratchetcore:registration_id"
	identityKeyKey   = "ratchetcore:identity"
)

// Store adapts a *redis.Client to store.Store.
type Store struct {
	client *redis.Client
}

// New wraps an already-configured redis client. The caller owns the
// client's lifecycle (Close).
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) LoadSession(ctx context.Context, addr string) (*session.Record, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(sessionKeyFmt, addr)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session.Unmarshal(data)
}

func (s *Store) StoreSession(ctx context.Context, addr string, record *session.Record) error {
	data, err := record.Marshal()
	if err != nil {
		return err
	}
	return s.client.Set(ctx, fmt.Sprintf(sessionKeyFmt, addr), data, 0).Err()
}

func (s *Store) IsTrustedIdentity(ctx context.Context, addr string, identityKey key.PublicKey) (bool, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(trustedKeyFmt, addr)).Bytes()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	var existing key.PublicKey
	if len(data) != key.Size {
		return false, fmt.Errorf("redisstore: stored identity key has wrong length")
	}
	copy(existing[:], data)
	return existing.Equals(identityKey), nil
}

func (s *Store) SaveIdentity(ctx context.Context, addr string, identityKey key.PublicKey) error {
	return s.client.Set(ctx, fmt.Sprintf(trustedKeyFmt, addr), identityKey[:], 0).Err()
}

type jsonPreKey struct {
	KeyID     uint32
	PrivKey   []byte
	PubKey    []byte
}

func (s *Store) LoadPreKey(ctx context.Context, keyID uint32) (*keys.PreKey, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(preKeyFmt, keyID)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var jpk jsonPreKey
	if err := json.Unmarshal(data, &jpk); err != nil {
		return nil, err
	}
	var pk keys.PreKey
	pk.KeyID = jpk.KeyID
	copy(pk.KeyPair.Priv[:], jpk.PrivKey)
	copy(pk.KeyPair.Pub[:], jpk.PubKey)
	return &pk, nil
}

func (s *Store) RemovePreKey(ctx context.Context, keyID uint32) error {
	return s.client.Del(ctx, fmt.Sprintf(preKeyFmt, keyID)).Err()
}

func (s *Store) PutPreKey(ctx context.Context, pk keys.PreKey) error {
	data, err := json.Marshal(jsonPreKey{KeyID: pk.KeyID, PrivKey: pk.KeyPair.Priv[:], PubKey: pk.KeyPair.Pub[:]})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, fmt.Sprintf(preKeyFmt, pk.KeyID), data, 0).Err()
}

type jsonSignedPreKey struct {
	KeyID     uint32
	PrivKey   []byte
	PubKey    []byte
	Signature []byte
	Timestamp uint64
}

func (s *Store) LoadSignedPreKey(ctx context.Context, keyID uint32) (*keys.SignedPreKey, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(signedPreKeyFmt, keyID)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var jspk jsonSignedPreKey
	if err := json.Unmarshal(data, &jspk); err != nil {
		return nil, err
	}
	var spk keys.SignedPreKey
	spk.KeyID = jspk.KeyID
	copy(spk.KeyPair.Priv[:], jspk.PrivKey)
	copy(spk.KeyPair.Pub[:], jspk.PubKey)
	copy(spk.Signature[:], jspk.Signature)
	spk.Timestamp = jspk.Timestamp
	return &spk, nil
}

func (s *Store) PutSignedPreKey(ctx context.Context, spk keys.SignedPreKey) error {
	data, err := json.Marshal(jsonSignedPreKey{
		KeyID:     spk.KeyID,
		PrivKey:   spk.KeyPair.Priv[:],
		PubKey:    spk.KeyPair.Pub[:],
		Signature: spk.Signature[:],
		Timestamp: spk.Timestamp,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, fmt.Sprintf(signedPreKeyFmt, spk.KeyID), data, 0).Err()
}

func (s *Store) GetOurRegistrationID(ctx context.Context) (uint32, error) {
	v, err := s.client.Get(ctx, registrationIDKey).Uint64()
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (s *Store) SetOurRegistrationID(ctx context.Context, id uint32) error {
	return s.client.Set(ctx, registrationIDKey, id, 0).Err()
}

type jsonIdentity struct {
	PrivKey []byte
	PubKey  []byte
}

func (s *Store) GetOurIdentity(ctx context.Context) (keys.IdentityKeyPair, error) {
	data, err := s.client.Get(ctx, identityKeyKey).Bytes()
	if err != nil {
		return keys.IdentityKeyPair{}, err
	}
	var ji jsonIdentity
	if err := json.Unmarshal(data, &ji); err != nil {
		return keys.IdentityKeyPair{}, err
	}
	var id keys.IdentityKeyPair
	copy(id.Priv[:], ji.PrivKey)
	copy(id.Pub[:], ji.PubKey)
	return id, nil
}

func (s *Store) SetOurIdentity(ctx context.Context, id keys.IdentityKeyPair) error {
	data, err := json.Marshal(jsonIdentity{PrivKey: id.Priv[:], PubKey: id.Pub[:]})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, identityKeyKey, data, 0).Err()
}
