package stream

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// DefaultMemMaxSize bounds in-memory streams; state larger than this
// belongs in a file-backed stream.
const DefaultMemMaxSize = 4 << 20 // 4MB

// MemFactory creates in-memory streams. It is used for very small state
// and throughout the test suite; created streams are retained so their
// terminal condition can be inspected.
type MemFactory struct {
	maxSize int

	mu      sync.Mutex
	created []*MemStream
}

// NewMemFactory creates an in-memory stream factory. maxSize <= 0 uses
// DefaultMemMaxSize.
func NewMemFactory(maxSize int) *MemFactory {
	if maxSize <= 0 {
		maxSize = DefaultMemMaxSize
	}
	return &MemFactory{maxSize: maxSize}
}

// Create implements Factory.
func (f *MemFactory) Create(_ Scope) (Stream, error) {
	s := &MemStream{
		id:      ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		maxSize: f.maxSize,
	}
	f.mu.Lock()
	f.created = append(f.created, s)
	f.mu.Unlock()
	return s, nil
}

// Created returns all streams this factory has handed out.
func (f *MemFactory) Created() []*MemStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MemStream, len(f.created))
	copy(out, f.created)
	return out
}

// MemStream is an in-memory Stream implementation.
type MemStream struct {
	id      string
	maxSize int

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	final  []byte
}

// Write implements io.Writer.
func (s *MemStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.buf.Len()+len(p) > s.maxSize {
		return 0, ErrStreamFull
	}
	return s.buf.Write(p)
}

// Flush implements Stream; in-memory data needs no flushing.
func (s *MemStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return nil
}

// CloseAndGetHandle implements Stream.
func (s *MemStream) CloseAndGetHandle() (*domain.StateHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	s.closed = true
	s.final = append([]byte(nil), s.buf.Bytes()...)

	sum := sha256.Sum256(s.final)
	return &domain.StateHandle{
		ID:       s.id,
		Size:     int64(len(s.final)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// Close implements Stream.
func (s *MemStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether a close-family call has happened.
func (s *MemStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Bytes returns the finalized payload, or nil if the stream was aborted.
func (s *MemStream) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}
