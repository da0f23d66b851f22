package wal

import (
	"errors"
	"time"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// Record framing constants.
const (
	// headerSize is the size of a record header: length (4) + crc (4).
	headerSize = 8

	// minRecordSize is header (8) + type (1) + encoding flag (1).
	minRecordSize = headerSize + 2
)

// Errors for changelog records.
var (
	ErrCorruptedRecord  = errors.New("wal: corrupted record")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidOpType    = errors.New("wal: invalid op type")
)

// OpType is the kind of state mutation a record carries.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	OpTypePut
	OpTypeDelete
)

// Entry is one durable state mutation. Timestamps are Unix
// milliseconds. Delete records carry no value.
type Entry struct {
	OpType    OpType
	Timestamp int64

	StateID   int
	KeyGroup  int
	Key       []byte
	Namespace []byte
	Value     []byte
}

// NewPutEntry builds a put record from a state entry.
func NewPutEntry(e *domain.StateEntry) *Entry {
	return &Entry{
		OpType:    OpTypePut,
		Timestamp: time.Now().UnixMilli(),
		StateID:   e.StateID,
		KeyGroup:  e.KeyGroup,
		Key:       e.Key,
		Namespace: e.Namespace,
		Value:     e.Value,
	}
}

// NewDeleteEntry builds a delete record.
func NewDeleteEntry(stateID int, keyGroup int, key, namespace []byte) *Entry {
	return &Entry{
		OpType:    OpTypeDelete,
		Timestamp: time.Now().UnixMilli(),
		StateID:   stateID,
		KeyGroup:  keyGroup,
		Key:       key,
		Namespace: namespace,
	}
}

// StateEntry converts a put record back into a state entry for replay.
func (e *Entry) StateEntry() *domain.StateEntry {
	return &domain.StateEntry{
		StateID:   e.StateID,
		KeyGroup:  e.KeyGroup,
		Key:       e.Key,
		Namespace: e.Namespace,
		Value:     e.Value,
	}
}
