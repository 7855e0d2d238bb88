// Package sessioncipher implements spec §4.7: encrypt/decrypt against
// a session record, PreKey-message vs normal-message dispatch,
// skipped-key lookup, and MAC verification. Grounded on the teacher's
// protocol/doubleratchet/doubleratchet.go Encrypt/Decrypt pair,
// generalized onto session.Record's multi-session/multi-chain shape
// and the wire package's real MAC framing.
package sessioncipher

import (
	"ratchetcore/config"
	"ratchetcore/crypto/aes256"
	"ratchetcore/crypto/key"
	"ratchetcore/ratchet"
	"ratchetcore/session"
	"ratchetcore/signalerr"
	"ratchetcore/wire"
)

// MessageType mirrors spec §6.2's encrypt() result discriminant.
type MessageType int

const (
	TypeWhisper    MessageType = 1
	TypePreKeyWhisper MessageType = 3
)

// Envelope is the result of Encrypt (spec §6.2).
type Envelope struct {
	Type           MessageType
	Body           []byte
	RegistrationID uint32
}

// Cipher operates encrypt/decrypt against one remote identity's
// session record (spec §6.2's SessionCipher(store, addr)).
type Cipher struct {
	OurIdentity key.PublicKey
	Addr        string
}

// Encrypt implements spec §4.7's encrypt(plaintext).
func (c *Cipher) Encrypt(record *session.Record, remoteIdentity key.PublicKey, plaintext []byte) (Envelope, error) {
	sess := record.GetOpenSession()
	if sess == nil {
		return Envelope{}, &signalerr.NoSessionError{Addr: c.Addr}
	}

	chain := sess.GetChain(sess.CurrentRatchet.EphemeralKeyPair.Pub, false)
	if chain == nil {
		next, sendCK, err := ratchet.BootstrapSendingChain(sess.CurrentRatchet)
		if err != nil {
			return Envelope{}, err
		}
		sess.CurrentRatchet = next
		chain = sess.GetChain(next.EphemeralKeyPair.Pub, true)
		chain.ChainKey = sendCK
		priv := next.EphemeralKeyPair.Priv
		chain.EphemeralPriv = &priv
	}

	nextChainKey, raw, err := ratchet.ChainStep(chain.ChainKey)
	if err != nil {
		return Envelope{}, err
	}
	mk, err := ratchet.DeriveMessageKey(chain.ChainKey.Counter, raw)
	if err != nil {
		return Envelope{}, err
	}
	chain.ChainKey = nextChainKey

	ciphertext, err := aes256.Encrypt(plaintext, mk.CipherKey, mk.IV)
	if err != nil {
		return Envelope{}, err
	}

	msg := wire.WhisperMessage{
		RatchetKey:      sess.CurrentRatchet.EphemeralKeyPair.Pub,
		Counter:         mk.Counter,
		PreviousCounter: sess.CurrentRatchet.PreviousCounter,
		Ciphertext:      ciphertext,
	}
	senderIdentity := c.OurIdentity.Prefixed()
	receiverIdentity := remoteIdentity.Prefixed()
	framed := wire.EncodeWhisperMessage(msg, mk.MacKey, config.VersionByte, senderIdentity, receiverIdentity)

	env := Envelope{Type: TypeWhisper, Body: framed, RegistrationID: sess.RegistrationID}
	if sess.PendingPreKey != nil {
		preKey := wire.PreKeyWhisperMessage{
			RegistrationID: sess.RegistrationID,
			PreKeyID:       sess.PendingPreKey.PreKeyID,
			SignedPreKeyID: sess.PendingPreKey.SignedKeyID,
			BaseKey:        prefixedToPub(sess.PendingPreKey.BaseKey),
			IdentityKey:    c.OurIdentity,
			Message:        framed,
		}
		env.Type = TypePreKeyWhisper
		env.Body = wire.EncodePreKeyWhisperMessage(preKey, config.VersionByte)
	}

	return env, nil
}

func prefixedToPub(b [key.PrefixedSize]byte) key.PublicKey {
	pub, _ := key.ParsePrefixed(b[:])
	return pub
}

// DecryptWithSession implements spec §4.7's decryptWithSession: try to
// decrypt body against one specific session, mutating it in place on
// success. It never persists; callers persist after a successful call.
func DecryptWithSession(sess *session.Session, remoteIdentity, ourIdentity key.PublicKey, body []byte) ([]byte, error) {
	parsed, err := wire.DecodeWhisperMessage(body)
	if err != nil {
		return nil, err
	}

	chain := sess.GetChain(parsed.RatchetKey, false)
	if chain == nil {
		if parsed.RatchetKey.Equals(sess.CurrentRatchet.LastRemoteEphemeralKey) {
			return nil, &signalerr.NoSessionError{}
		}
		if err := ratchetToNewRemoteKey(sess, parsed); err != nil {
			return nil, err
		}
		chain = sess.GetChain(parsed.RatchetKey, false)
	}

	mk, err := messageKeyForCounter(chain, parsed.Counter)
	if err != nil {
		return nil, err
	}

	senderIdentity := remoteIdentity.Prefixed()
	receiverIdentity := ourIdentity.Prefixed()
	if !wire.VerifyMAC(parsed, mk.MacKey, senderIdentity, receiverIdentity) {
		return nil, &signalerr.MACError{}
	}

	plaintext, err := aes256.Decrypt(parsed.Ciphertext, mk.CipherKey, mk.IV)
	if err != nil {
		return nil, &signalerr.DecryptError{Cause: err}
	}

	// Any successfully decrypted message proves the remote party has
	// synced this session, so there is no need to keep re-announcing
	// our bootstrap material.
	sess.PendingPreKey = nil

	sess.RemoveOldChains()
	return plaintext, nil
}

// ratchetToNewRemoteKey implements spec §4.7 step 1's receiving DH
// ratchet: fill skipped keys on the prior receiving chain up to
// previousCounter, then derive fresh receiving/sending chains for the
// new remote ephemeral.
func ratchetToNewRemoteKey(sess *session.Session, parsed *wire.ParsedWhisperMessage) error {
	if prior := sess.GetChain(sess.CurrentRatchet.LastRemoteEphemeralKey, false); prior != nil {
		if err := fillSkipped(prior, parsed.PreviousCounter); err != nil {
			return err
		}
	}

	var priorSendingCounter uint32
	if priorSend := sess.GetChain(sess.CurrentRatchet.EphemeralKeyPair.Pub, false); priorSend != nil {
		priorSendingCounter = priorSend.ChainKey.Counter
	}

	next, recvCK, sendCK, err := ratchet.DHRatchetStep(sess.CurrentRatchet, parsed.RatchetKey, priorSendingCounter)
	if err != nil {
		return err
	}

	recvChain := sess.GetChain(parsed.RatchetKey, true)
	recvChain.ChainKey = recvCK

	sess.CurrentRatchet = next
	sendChain := sess.GetChain(next.EphemeralKeyPair.Pub, true)
	sendChain.ChainKey = sendCK
	priv := next.EphemeralKeyPair.Priv
	sendChain.EphemeralPriv = &priv

	return nil
}

// fillSkipped steps chain forward to targetCounter, caching every
// intermediate MessageKey, so a reordered message can still be
// decrypted later (spec §4.7 step 1 and invariant 4).
func fillSkipped(chain *session.Chain, targetCounter uint32) error {
	if targetCounter <= chain.ChainKey.Counter {
		return nil
	}
	if targetCounter-chain.ChainKey.Counter > config.MaxSkippedMessageKeys {
		return &signalerr.MessageCounterError{Reason: "skip gap exceeds cap"}
	}
	for chain.ChainKey.Counter < targetCounter {
		next, raw, err := ratchet.ChainStep(chain.ChainKey)
		if err != nil {
			return err
		}
		mk, err := ratchet.DeriveMessageKey(chain.ChainKey.Counter, raw)
		if err != nil {
			return err
		}
		chain.PutSkipped(mk)
		chain.ChainKey = next
	}
	return nil
}

// messageKeyForCounter implements spec §4.7 steps 2-3: return a
// cached skipped key, or step the chain forward to reach counter.
func messageKeyForCounter(chain *session.Chain, counter uint32) (session.MessageKey, error) {
	if counter < chain.ChainKey.Counter {
		mk, ok := chain.TakeSkipped(counter)
		if !ok {
			return session.MessageKey{}, &signalerr.MessageCounterError{Reason: "skipped key already consumed or evicted"}
		}
		return mk, nil
	}

	if counter-chain.ChainKey.Counter > config.MaxSkippedMessageKeys {
		return session.MessageKey{}, &signalerr.MessageCounterError{Reason: "skip gap exceeds cap"}
	}

	var out session.MessageKey
	for chain.ChainKey.Counter <= counter {
		next, raw, err := ratchet.ChainStep(chain.ChainKey)
		if err != nil {
			return session.MessageKey{}, err
		}
		mk, err := ratchet.DeriveMessageKey(chain.ChainKey.Counter, raw)
		if err != nil {
			return session.MessageKey{}, err
		}
		if chain.ChainKey.Counter == counter {
			out = mk
		} else {
			chain.PutSkipped(mk)
		}
		chain.ChainKey = next
	}
	return out, nil
}
