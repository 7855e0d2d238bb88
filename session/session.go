// Package session implements the SessionRecord of spec §4.4: the
// per-remote-address collection of ratchet states, with at most one
// open session, archival/eviction under the 2000/40 caps, and a
// JSON-based serialization shaped after the teacher's
// ratchet/disk/disk.go RatchetState.
package session

import (
	"container/list"

	"ratchetcore/config"
	"ratchetcore/crypto/key"
)

// ChainKey is the symmetric-ratchet state of one chain (spec §3).
type ChainKey struct {
	Key     [32]byte
	Counter uint32
}

// MessageKey is the per-message key material derived from a ChainKey.
type MessageKey struct {
	CipherKey [32]byte
	MacKey    [32]byte
	IV        [16]byte
	Counter   uint32
}

// skippedKey is one cached MessageKey and its counter; its position in
// Chain.skipOrder records insertion order, used to evict the oldest
// entry once a chain's or session's cap is hit.
type skippedKey struct {
	counter uint32
	mk      MessageKey
}

// Chain is one sending or receiving chain within a Session. Sending
// chains carry EphemeralPriv; receiving chains only ever populate
// EphemeralPub.
type Chain struct {
	ChainKey     ChainKey
	EphemeralPub key.PublicKey
	// EphemeralPriv is set only for chains we originated (sending chains).
	EphemeralPriv *key.PrivateKey

	skipped   map[uint32]*list.Element
	skipOrder *list.List // of skippedKey, oldest at Front
}

func newChain() *Chain {
	return &Chain{
		skipped:   make(map[uint32]*list.Element),
		skipOrder: list.New(),
	}
}

// PutSkipped caches a skipped MessageKey, evicting the oldest entry in
// this chain if the per-chain cap would be exceeded.
func (c *Chain) PutSkipped(mk MessageKey) {
	if c.skipped == nil {
		c.skipped = make(map[uint32]*list.Element)
		c.skipOrder = list.New()
	}
	el := c.skipOrder.PushBack(skippedKey{counter: mk.Counter, mk: mk})
	c.skipped[mk.Counter] = el
	for c.skipOrder.Len() > config.MaxSkippedMessageKeys {
		c.evictOldest()
	}
}

func (c *Chain) evictOldest() {
	front := c.skipOrder.Front()
	if front == nil {
		return
	}
	sk := front.Value.(skippedKey)
	delete(c.skipped, sk.counter)
	c.skipOrder.Remove(front)
}

// TakeSkipped removes and returns a cached MessageKey for counter, if any.
func (c *Chain) TakeSkipped(counter uint32) (MessageKey, bool) {
	el, ok := c.skipped[counter]
	if !ok {
		return MessageKey{}, false
	}
	sk := el.Value.(skippedKey)
	delete(c.skipped, counter)
	c.skipOrder.Remove(el)
	return sk.mk, true
}

// SkippedCount reports how many skipped keys this chain currently holds.
func (c *Chain) SkippedCount() int {
	if c.skipOrder == nil {
		return 0
	}
	return c.skipOrder.Len()
}

// BaseKeyType distinguishes who contributed the base key that indexes
// a Session (spec §3 indexInfo.baseKeyType).
type BaseKeyType int

const (
	BaseKeyOurs BaseKeyType = iota
	BaseKeyTheirs
)

// PendingPreKey records the X3DH material a freshly bootstrapped
// sending session must still announce to the remote party until it
// receives an ack (spec §3).
type PendingPreKey struct {
	PreKeyID       *uint32
	SignedKeyID    uint32
	BaseKey        [key.PrefixedSize]byte
}

// IndexInfo is the metadata that locates and orders a Session within
// its record (spec §3).
type IndexInfo struct {
	RemoteIdentityKey key.PublicKey
	BaseKey           [key.PrefixedSize]byte
	BaseKeyType       BaseKeyType
	// Closed is -1 while open, else the archival Unix timestamp.
	Closed int64
	// Sequence orders sessions by insertion for oldest-eviction,
	// independent of Closed (spec's "oldest" has no other total order).
	Sequence uint64
}

// CurrentRatchet is the live Diffie-Hellman ratchet state (spec §3).
type CurrentRatchet struct {
	RootKey                [32]byte
	EphemeralKeyPair       key.Pair
	LastRemoteEphemeralKey key.PublicKey
	PreviousCounter        uint32
}

// Session is one ratchet state, open or archived (spec §3).
type Session struct {
	RegistrationID uint32
	CurrentRatchet CurrentRatchet
	IndexInfo      IndexInfo
	PendingPreKey  *PendingPreKey
	// Chains is keyed by the 33-byte prefixed ephemeral public key that
	// identifies the chain.
	Chains map[[key.PrefixedSize]byte]*Chain
}

func newSession() *Session {
	return &Session{Chains: make(map[[key.PrefixedSize]byte]*Chain)}
}

// GetChain returns the chain for ephPub, creating it if ensure is true
// and it does not yet exist.
func (s *Session) GetChain(ephPub key.PublicKey, ensure bool) *Chain {
	k := ephPub.Prefixed()
	c, ok := s.Chains[k]
	if !ok {
		if !ensure {
			return nil
		}
		c = newChain()
		c.EphemeralPub = ephPub
		s.Chains[k] = c
	}
	return c
}

// RemoveOldChains evicts chains beyond the per-session skipped-key cap
// of config.MaxSkippedMessageKeys, oldest total skipped entries first,
// leaving the chain tied to the session's current ratchet untouched
// (spec §4.4 removeOldChains, invariant 2).
func (s *Session) RemoveOldChains() {
	total := 0
	for _, c := range s.Chains {
		total += c.SkippedCount()
	}
	if total <= config.MaxSkippedMessageKeys {
		return
	}
	currentKey := s.CurrentRatchet.EphemeralKeyPair.Pub.Prefixed()
	for total > config.MaxSkippedMessageKeys {
		var oldestKey [key.PrefixedSize]byte
		var oldestChain *Chain
		oldestCounter := int64(-1)
		for k, c := range s.Chains {
			if k == currentKey || c.SkippedCount() == 0 {
				continue
			}
			front := c.skipOrder.Front()
			if front == nil {
				continue
			}
			sk := front.Value.(skippedKey)
			if oldestCounter == -1 || int64(sk.counter) < oldestCounter {
				oldestCounter = int64(sk.counter)
				oldestKey = k
				oldestChain = c
			}
		}
		if oldestChain == nil {
			break
		}
		oldestChain.evictOldest()
		total--
		if oldestChain.SkippedCount() == 0 && oldestKey != currentKey {
			delete(s.Chains, oldestKey)
		}
	}
}

// Record is an ordered collection of Sessions for one remote base key
// space, with at most one open session (spec §4.4).
type Record struct {
	Sessions []*Session
	nextSeq  uint64
}

// NewRecord returns an empty SessionRecord.
func NewRecord() *Record {
	return &Record{}
}

// GetOpenSession returns the record's single open session, if any.
func (r *Record) GetOpenSession() *Session {
	for _, s := range r.Sessions {
		if s.IndexInfo.Closed < 0 {
			return s
		}
	}
	return nil
}

// GetSessionByBaseKey scans open and archived sessions for one whose
// indexInfo.baseKey matches baseKey (spec §4.4).
func (r *Record) GetSessionByBaseKey(baseKey [key.PrefixedSize]byte) *Session {
	for _, s := range r.Sessions {
		if s.IndexInfo.BaseKey == baseKey {
			return s
		}
	}
	return nil
}

// ArchiveCurrentState closes the open session without deleting it
// (spec §4.4).
func (r *Record) ArchiveCurrentState(now int64) {
	if open := r.GetOpenSession(); open != nil {
		open.IndexInfo.Closed = now
	}
}

// SetSession inserts or updates a session. If its baseKey differs from
// the currently open session, the current one is archived first (spec
// §4.4, invariant 5).
func (r *Record) SetSession(s *Session, now int64) {
	if existing := r.GetSessionByBaseKey(s.IndexInfo.BaseKey); existing != nil {
		*existing = *s
		return
	}
	if open := r.GetOpenSession(); open != nil && open.IndexInfo.BaseKey != s.IndexInfo.BaseKey {
		open.IndexInfo.Closed = now
	}
	s.IndexInfo.Sequence = r.nextSeq
	r.nextSeq++
	r.Sessions = append(r.Sessions, s)
	r.removeOldSessions()
}

// PromoteState replaces the current ratchet in-place after a DH
// ratchet step (spec §4.4).
func (s *Session) PromoteState(next CurrentRatchet) {
	s.CurrentRatchet = next
}

// removeOldSessions enforces the 40-archived-session cap, evicting the
// oldest archived session first (spec §4.4, invariant 3).
func (r *Record) removeOldSessions() {
	archivedCount := 0
	for _, s := range r.Sessions {
		if s.IndexInfo.Closed >= 0 {
			archivedCount++
		}
	}
	for archivedCount > config.MaxArchivedSessions {
		oldestIdx := -1
		var oldestSeq uint64
		for i, s := range r.Sessions {
			if s.IndexInfo.Closed < 0 {
				continue
			}
			if oldestIdx == -1 || s.IndexInfo.Sequence < oldestSeq {
				oldestIdx = i
				oldestSeq = s.IndexInfo.Sequence
			}
		}
		if oldestIdx == -1 {
			break
		}
		r.Sessions = append(r.Sessions[:oldestIdx], r.Sessions[oldestIdx+1:]...)
		archivedCount--
	}
}

// NewSession constructs an empty Session ready to be populated by the
// ratchet engine or session builder.
func NewSession() *Session {
	return newSession()
}
