package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/yndnr/streammesh-go/pkg/crypto/adaptive"
)

// Payload encoding flags, stored in the byte after the op type.
const (
	encodingPlain     = 0x00
	encodingEncrypted = 0x01
)

// encodePayload serializes the record body:
//
//	ts(8) | stateID(2) | group(2) | keyLen(2) | key | nsLen(4) | ns | valLen(4) | val
//
// All integers are big-endian. Delete records omit the value section.
func encodePayload(e *Entry) ([]byte, error) {
	if e.KeyGroup < 0 || e.KeyGroup > 0xFFFF {
		return nil, fmt.Errorf("wal: key group %d out of encodable range", e.KeyGroup)
	}
	if e.StateID < 0 || e.StateID > 0xFFFF {
		return nil, fmt.Errorf("wal: state id %d out of encodable range", e.StateID)
	}
	if len(e.Key) > 0xFFFF {
		return nil, fmt.Errorf("wal: key length %d exceeds limit", len(e.Key))
	}

	size := 8 + 2 + 2 + 2 + len(e.Key) + 4 + len(e.Namespace)
	if e.OpType == OpTypePut {
		size += 4 + len(e.Value)
	}
	out := make([]byte, 0, size)

	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], uint64(e.Timestamp))
	out = append(out, b8[:]...)

	var b2 [2]byte
	binary.BigEndian.PutUint16(b2[:], uint16(e.StateID))
	out = append(out, b2[:]...)
	binary.BigEndian.PutUint16(b2[:], uint16(e.KeyGroup))
	out = append(out, b2[:]...)
	binary.BigEndian.PutUint16(b2[:], uint16(len(e.Key)))
	out = append(out, b2[:]...)
	out = append(out, e.Key...)

	var b4 [4]byte
	binary.BigEndian.PutUint32(b4[:], uint32(len(e.Namespace)))
	out = append(out, b4[:]...)
	out = append(out, e.Namespace...)

	if e.OpType == OpTypePut {
		binary.BigEndian.PutUint32(b4[:], uint32(len(e.Value)))
		out = append(out, b4[:]...)
		out = append(out, e.Value...)
	}
	return out, nil
}

func decodePayload(op OpType, p []byte) (*Entry, error) {
	if len(p) < 8+2+2+2 {
		return nil, ErrCorruptedRecord
	}
	e := &Entry{OpType: op}
	e.Timestamp = int64(binary.BigEndian.Uint64(p[:8]))
	p = p[8:]

	e.StateID = int(binary.BigEndian.Uint16(p[:2]))
	e.KeyGroup = int(binary.BigEndian.Uint16(p[2:4]))
	keyLen := int(binary.BigEndian.Uint16(p[4:6]))
	p = p[6:]

	if len(p) < keyLen+4 {
		return nil, ErrCorruptedRecord
	}
	e.Key = append([]byte(nil), p[:keyLen]...)
	p = p[keyLen:]

	nsLen := int(binary.BigEndian.Uint32(p[:4]))
	p = p[4:]
	if len(p) < nsLen {
		return nil, ErrCorruptedRecord
	}
	e.Namespace = append([]byte(nil), p[:nsLen]...)
	p = p[nsLen:]

	if op == OpTypeDelete {
		if len(p) != 0 {
			return nil, ErrCorruptedRecord
		}
		return e, nil
	}

	if len(p) < 4 {
		return nil, ErrCorruptedRecord
	}
	valLen := int(binary.BigEndian.Uint32(p[:4]))
	p = p[4:]
	if len(p) != valLen {
		return nil, ErrCorruptedRecord
	}
	e.Value = append([]byte(nil), p...)
	return e, nil
}

// encodeRecordFrame wraps a record for the segment file:
//
//	[length:4][crc32:4][type:1][encoding:1][payload]
//
// length covers everything after itself. The CRC covers type, encoding
// flag and payload, so a truncated or bit-flipped record is detected
// before decoding.
func encodeRecordFrame(e *Entry, cipher adaptive.Cipher) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: record is nil")
	}
	switch e.OpType {
	case OpTypePut, OpTypeDelete:
	default:
		return nil, ErrInvalidOpType
	}

	payload, err := encodePayload(e)
	if err != nil {
		return nil, err
	}

	encoding := byte(encodingPlain)
	if cipher != nil {
		encrypted, err := cipher.Encrypt(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("wal: encrypt record: %w", err)
		}
		payload = encrypted
		encoding = encodingEncrypted
	}

	body := make([]byte, 0, 2+len(payload))
	body = append(body, byte(e.OpType), encoding)
	body = append(body, payload...)

	crc := crc32.ChecksumIEEE(body)

	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(4+len(body)))
	binary.BigEndian.PutUint32(out[4:8], crc)
	return append(out, body...), nil
}

// decodeRecordFrame decodes a frame without its length prefix:
// [crc32:4][type:1][encoding:1][payload].
func decodeRecordFrame(frame []byte, cipher adaptive.Cipher) (*Entry, error) {
	if len(frame) < 6 {
		return nil, ErrCorruptedRecord
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	op := OpType(body[0])
	switch op {
	case OpTypePut, OpTypeDelete:
	default:
		return nil, ErrInvalidOpType
	}

	encoding := body[1]
	payload := body[2:]
	switch encoding {
	case encodingPlain:
	case encodingEncrypted:
		if cipher == nil {
			return nil, fmt.Errorf("wal: encrypted record requires cipher")
		}
		plain, err := cipher.Decrypt(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("wal: decrypt record: %w", err)
		}
		payload = plain
	default:
		return nil, ErrCorruptedRecord
	}

	return decodePayload(op, payload)
}
