package wire

import (
	"crypto/hmac"

	hmacutil "ratchetcore/crypto/hmac"
	"ratchetcore/crypto/key"
	"ratchetcore/signalerr"

	"ratchetcore/crypto"
)

const (
	fieldRatchetKey       = 1
	fieldCounter          = 2
	fieldPreviousCounter  = 3
	fieldCiphertext       = 4
	fieldPreKeyID         = 1
	fieldBaseKey          = 2
	fieldIdentityKey      = 3
	fieldPreKeyMessage    = 4
	fieldRegistrationID   = 5
	fieldSignedPreKeyID   = 6
)

// WhisperMessage is the ciphertext frame of an established session
// (spec §4.2).
type WhisperMessage struct {
	RatchetKey      key.PublicKey
	Counter         uint32
	PreviousCounter uint32
	Ciphertext      []byte
}

// ParsedWhisperMessage is a WhisperMessage as decoded off the wire,
// retaining the signed portion (version byte + protobuf bytes) needed
// to verify its MAC and the raw MAC bytes to compare against.
type ParsedWhisperMessage struct {
	WhisperMessage
	Mac           [8]byte
	signedPortion []byte
}

func encodeWhisperBody(msg WhisperMessage) []byte {
	prefixed := msg.RatchetKey.Prefixed()
	var buf []byte
	buf = putBytesField(buf, fieldRatchetKey, prefixed[:])
	buf = putVarintField(buf, fieldCounter, uint64(msg.Counter))
	buf = putVarintField(buf, fieldPreviousCounter, uint64(msg.PreviousCounter))
	buf = putBytesField(buf, fieldCiphertext, msg.Ciphertext)
	return buf
}

// ComputeMAC implements spec §4.2's MAC: the first 8 bytes of
// HMAC-SHA256(macKey, senderIdentityPub(33B) || receiverIdentityPub(33B)
// || versionByte || protobufBytes).
func ComputeMAC(macKey [32]byte, senderIdentity, receiverIdentity [33]byte, versionByte byte, protobufBytes []byte) [8]byte {
	data := make([]byte, 0, 33+33+1+len(protobufBytes))
	data = append(data, senderIdentity[:]...)
	data = append(data, receiverIdentity[:]...)
	data = append(data, versionByte)
	data = append(data, protobufBytes...)
	full := hmacutil.Hash(crypto.DefaultHashFunc, macKey[:], data)
	var out [8]byte
	copy(out[:], full[:8])
	return out
}

// EncodeWhisperMessage frames msg per spec §4.2: version byte,
// protobuf body, and truncated MAC.
func EncodeWhisperMessage(msg WhisperMessage, macKey [32]byte, versionByte byte, senderIdentity, receiverIdentity [33]byte) []byte {
	body := encodeWhisperBody(msg)
	mac := ComputeMAC(macKey, senderIdentity, receiverIdentity, versionByte, body)

	out := make([]byte, 0, 1+len(body)+8)
	out = append(out, versionByte)
	out = append(out, body...)
	out = append(out, mac[:]...)
	return out
}

// DecodeWhisperMessage parses a framed WhisperMessage without
// verifying its MAC (the caller derives macKey from the ratchet state
// and calls VerifyMAC once it knows which session/chain to use).
func DecodeWhisperMessage(data []byte) (*ParsedWhisperMessage, error) {
	if len(data) < 1+8 {
		return nil, &signalerr.StructuralError{Reason: "whisper message too short"}
	}
	versionByte := data[0]
	if versionByte>>4 < 3 {
		return nil, &signalerr.StructuralError{Reason: "unsupported message version"}
	}
	body := data[1 : len(data)-8]
	var mac [8]byte
	copy(mac[:], data[len(data)-8:])

	fields, err := parseFields(body)
	if err != nil {
		return nil, &signalerr.StructuralError{Reason: err.Error()}
	}

	var parsed ParsedWhisperMessage
	var haveRatchetKey, haveCounter, haveCiphertext bool
	for _, f := range fields {
		switch f.num {
		case fieldRatchetKey:
			if len(f.bytes) != key.PrefixedSize {
				return nil, &signalerr.StructuralError{Reason: "ratchetKey must be 33 bytes"}
			}
			pub, err := key.ParsePrefixed(f.bytes)
			if err != nil {
				return nil, &signalerr.StructuralError{Reason: err.Error()}
			}
			parsed.RatchetKey = pub
			haveRatchetKey = true
		case fieldCounter:
			parsed.Counter = uint32(f.varint)
			haveCounter = true
		case fieldPreviousCounter:
			parsed.PreviousCounter = uint32(f.varint)
		case fieldCiphertext:
			parsed.Ciphertext = f.bytes
			haveCiphertext = true
		}
	}
	if !haveRatchetKey || !haveCounter || !haveCiphertext {
		return nil, &signalerr.StructuralError{Reason: "missing required WhisperMessage field"}
	}

	parsed.Mac = mac
	parsed.signedPortion = append([]byte{versionByte}, body...)
	return &parsed, nil
}

// VerifyMAC checks a parsed message's MAC against macKey, using
// constant-time comparison.
func VerifyMAC(parsed *ParsedWhisperMessage, macKey [32]byte, senderIdentity, receiverIdentity [33]byte) bool {
	versionByte := parsed.signedPortion[0]
	body := parsed.signedPortion[1:]
	expected := ComputeMAC(macKey, senderIdentity, receiverIdentity, versionByte, body)
	return hmac.Equal(expected[:], parsed.Mac[:])
}
