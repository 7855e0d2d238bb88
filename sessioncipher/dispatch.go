package sessioncipher

import (
	"context"

	"ratchetcore/crypto/key"
	"ratchetcore/session"
	"ratchetcore/sessionbuilder"
	"ratchetcore/signalerr"
	"ratchetcore/store"
	"ratchetcore/wire"
)

// DecryptWhisperMessage implements spec §4.7's decryptWhisperMessage:
// try the open session, then archived sessions newest-first, stopping
// at the first success, persisting and promoting on success.
func (c *Cipher) DecryptWhisperMessage(ctx context.Context, s store.Store, remoteIdentity key.PublicKey, body []byte, now int64) ([]byte, error) {
	record, err := s.LoadSession(ctx, c.Addr)
	if err == store.ErrNotFound {
		return nil, &signalerr.NoSessionError{Addr: c.Addr}
	}
	if err != nil {
		return nil, &signalerr.StoreError{Cause: err}
	}

	ordered := orderedSessions(record)
	if len(ordered) == 0 {
		return nil, &signalerr.NoSessionError{Addr: c.Addr}
	}

	var lastErr error
	for _, sess := range ordered {
		plaintext, err := DecryptWithSession(sess, remoteIdentity, c.OurIdentity, body)
		if err != nil {
			lastErr = err
			continue
		}

		wasArchived := sess.IndexInfo.Closed >= 0
		if wasArchived {
			record.ArchiveCurrentState(now)
			sess.IndexInfo.Closed = -1
		}
		if err := s.StoreSession(ctx, c.Addr, record); err != nil {
			return nil, &signalerr.StoreError{Cause: err}
		}
		return plaintext, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &signalerr.NoSessionError{Addr: c.Addr}
}

// orderedSessions returns the open session first (if any), then
// archived sessions newest-first, matching spec §4.7's search order.
func orderedSessions(record *session.Record) []*session.Session {
	var open *session.Session
	var archived []*session.Session
	for _, s := range record.Sessions {
		if s.IndexInfo.Closed < 0 {
			open = s
		} else {
			archived = append(archived, s)
		}
	}
	for i, j := 0, len(archived)-1; i < j; i, j = i+1, j-1 {
		archived[i], archived[j] = archived[j], archived[i]
	}
	out := archived
	if open != nil {
		out = append([]*session.Session{open}, archived...)
	}
	return out
}

// DecryptPreKeyWhisperMessage implements spec §4.7's
// decryptPreKeyWhisperMessage: bootstrap or reuse a session via
// sessionbuilder.InitIncoming, decrypt the embedded WhisperMessage
// against it, and only then instruct the store to forget a consumed
// one-time PreKey.
func (c *Cipher) DecryptPreKeyWhisperMessage(ctx context.Context, s store.Store, body []byte, now int64) ([]byte, error) {
	outer, err := wire.DecodePreKeyWhisperMessage(body)
	if err != nil {
		return nil, err
	}

	builder := sessionbuilder.New(s, c.Addr)
	record, sess, consumedPreKeyID, err := builder.InitIncoming(
		ctx, outer.IdentityKey, outer.BaseKey, outer.SignedPreKeyID, outer.PreKeyID, outer.RegistrationID, now,
	)
	if err != nil {
		return nil, err
	}

	// MAC verification happens inside DecryptWithSession; the store is
	// only touched after it succeeds, so a tampered PreKey message never
	// commits the session InitIncoming just built (spec §7). The record
	// and session persisted below are the exact objects InitIncoming
	// returned and DecryptWithSession mutated in place, not a reload —
	// a LoadSession here would hand back a freshly deserialized, still
	// pre-decrypt copy on any store that doesn't alias in memory.
	plaintext, err := DecryptWithSession(sess, outer.IdentityKey, c.OurIdentity, outer.Message)
	if err != nil {
		return nil, err
	}

	if err := s.StoreSession(ctx, c.Addr, record); err != nil {
		return nil, &signalerr.StoreError{Cause: err}
	}

	if consumedPreKeyID != nil {
		if err := s.RemovePreKey(ctx, *consumedPreKeyID); err != nil {
			return nil, &signalerr.StoreError{Cause: err}
		}
	}

	return plaintext, nil
}
