package wire

import (
	"ratchetcore/crypto/key"
	"ratchetcore/signalerr"
)

// PreKeyWhisperMessage bootstraps a session per spec §4.2/§4.6: it
// wraps an inner WhisperMessage with the X3DH material the receiver
// needs to derive the same session.
type PreKeyWhisperMessage struct {
	RegistrationID uint32
	// PreKeyID is nil when the sender's bundle had no one-time PreKey
	// available (spec's "PreKey omission" edge case).
	PreKeyID       *uint32
	SignedPreKeyID uint32
	BaseKey        key.PublicKey
	IdentityKey    key.PublicKey
	Message        []byte
}

// EncodePreKeyWhisperMessage frames msg: a version byte followed by
// the protobuf body. There is no outer MAC; authentication happens via
// the inner WhisperMessage once the session is established.
func EncodePreKeyWhisperMessage(msg PreKeyWhisperMessage, versionByte byte) []byte {
	var buf []byte
	buf = putVarintField(buf, fieldRegistrationID, uint64(msg.RegistrationID))
	if msg.PreKeyID != nil {
		buf = putVarintField(buf, fieldPreKeyID, uint64(*msg.PreKeyID))
	}
	buf = putVarintField(buf, fieldSignedPreKeyID, uint64(msg.SignedPreKeyID))
	baseKey := msg.BaseKey.Prefixed()
	buf = putBytesField(buf, fieldBaseKey, baseKey[:])
	identityKey := msg.IdentityKey.Prefixed()
	buf = putBytesField(buf, fieldIdentityKey, identityKey[:])
	buf = putBytesField(buf, fieldPreKeyMessage, msg.Message)

	out := make([]byte, 0, 1+len(buf))
	out = append(out, versionByte)
	out = append(out, buf...)
	return out
}

// DecodePreKeyWhisperMessage parses a framed PreKeyWhisperMessage.
func DecodePreKeyWhisperMessage(data []byte) (*PreKeyWhisperMessage, error) {
	if len(data) < 1 {
		return nil, &signalerr.StructuralError{Reason: "prekey message too short"}
	}
	versionByte := data[0]
	if versionByte>>4 < 3 {
		return nil, &signalerr.StructuralError{Reason: "unsupported message version"}
	}

	fields, err := parseFields(data[1:])
	if err != nil {
		return nil, &signalerr.StructuralError{Reason: err.Error()}
	}

	var msg PreKeyWhisperMessage
	var haveBaseKey, haveIdentityKey, haveMessage, haveRegID, haveSignedPreKeyID bool
	for _, f := range fields {
		switch f.num {
		case fieldPreKeyID:
			id := uint32(f.varint)
			msg.PreKeyID = &id
		case fieldBaseKey:
			if len(f.bytes) != key.PrefixedSize {
				return nil, &signalerr.StructuralError{Reason: "baseKey must be 33 bytes"}
			}
			pub, err := key.ParsePrefixed(f.bytes)
			if err != nil {
				return nil, &signalerr.StructuralError{Reason: err.Error()}
			}
			msg.BaseKey = pub
			haveBaseKey = true
		case fieldIdentityKey:
			if len(f.bytes) != key.PrefixedSize {
				return nil, &signalerr.StructuralError{Reason: "identityKey must be 33 bytes"}
			}
			pub, err := key.ParsePrefixed(f.bytes)
			if err != nil {
				return nil, &signalerr.StructuralError{Reason: err.Error()}
			}
			msg.IdentityKey = pub
			haveIdentityKey = true
		case fieldPreKeyMessage:
			msg.Message = f.bytes
			haveMessage = true
		case fieldRegistrationID:
			msg.RegistrationID = uint32(f.varint)
			haveRegID = true
		case fieldSignedPreKeyID:
			msg.SignedPreKeyID = uint32(f.varint)
			haveSignedPreKeyID = true
		}
	}
	if !haveBaseKey || !haveIdentityKey || !haveMessage || !haveRegID || !haveSignedPreKeyID {
		return nil, &signalerr.StructuralError{Reason: "missing required PreKeyWhisperMessage field"}
	}
	return &msg, nil
}
