// Package wire implements the wire codec of spec §4.2: the
// WhisperMessage and PreKeyWhisperMessage frames, matching the
// Signal v3 WhisperText protobuf field layout byte-for-byte. No
// protoc toolchain is available in this environment to regenerate
// `.pb.go` bindings, so this file hand-encodes/decodes the protobuf
// wire format (tag/varint/length-delimited) directly against the
// fixed, known shape of these two messages — see DESIGN.md.
package wire

import (
	"encoding/binary"
	"errors"
)

const (
	wireVarint = 0
	wireBytes  = 2
)

func putTag(buf []byte, fieldNum int, wireType int) []byte {
	return putVarint(buf, uint64(fieldNum<<3|wireType))
}

func putVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func putBytesField(buf []byte, fieldNum int, data []byte) []byte {
	buf = putTag(buf, fieldNum, wireBytes)
	buf = putVarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func putVarintField(buf []byte, fieldNum int, v uint64) []byte {
	buf = putTag(buf, fieldNum, wireVarint)
	return putVarint(buf, v)
}

// pbField is one decoded (fieldNum, wireType, payload) triple. For
// varint fields payload is the raw varint; for length-delimited
// fields payload is the field's bytes.
type pbField struct {
	num      int
	wireType int
	varint   uint64
	bytes    []byte
}

var errTruncated = errors.New("wire: truncated protobuf message")

func parseFields(data []byte) ([]pbField, error) {
	var fields []pbField
	i := 0
	for i < len(data) {
		tag, n := binary.Uvarint(data[i:])
		if n <= 0 {
			return nil, errTruncated
		}
		i += n
		fieldNum := int(tag >> 3)
		wireType := int(tag & 0x7)
		switch wireType {
		case wireVarint:
			v, n := binary.Uvarint(data[i:])
			if n <= 0 {
				return nil, errTruncated
			}
			i += n
			fields = append(fields, pbField{num: fieldNum, wireType: wireType, varint: v})
		case wireBytes:
			l, n := binary.Uvarint(data[i:])
			if n <= 0 {
				return nil, errTruncated
			}
			i += n
			if i+int(l) > len(data) {
				return nil, errTruncated
			}
			fields = append(fields, pbField{num: fieldNum, wireType: wireType, bytes: data[i : i+int(l)]})
			i += int(l)
		default:
			return nil, errTruncated
		}
	}
	return fields, nil
}
