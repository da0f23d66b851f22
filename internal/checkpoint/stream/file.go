package stream

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// File container constants. The magic identifies snapshot container
// files; the codec payload between magic and checksum trailer carries no
// header of its own.
const (
	MagicBytes     = "SMSNAP\x01\x00"
	MagicBytesSize = 8
	ChecksumSize   = 32

	filePrefix    = "state-"
	fileExtension = ".snap"
	tempExtension = ".tmp"

	defaultFilePerm = 0600
	defaultDirPerm  = 0750
)

var (
	ErrInvalidMagic     = errors.New("stream: invalid magic bytes")
	ErrChecksumMismatch = errors.New("stream: checksum mismatch")
)

// FileFactory creates file-backed scoped streams under a checkpoint
// directory. Exclusive streams live in chk-<id>/, shared streams in
// shared/ so later checkpoints can reference them.
type FileFactory struct {
	baseDir      string
	checkpointID domain.CheckpointID
}

// NewFileFactory creates a factory rooted at baseDir for one checkpoint.
func NewFileFactory(baseDir string, checkpointID domain.CheckpointID) (*FileFactory, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("stream: base dir is required")
	}
	return &FileFactory{baseDir: baseDir, checkpointID: checkpointID}, nil
}

// Create implements Factory.
func (f *FileFactory) Create(scope Scope) (Stream, error) {
	dir := f.scopeDir(scope)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("stream: create dir: %w", err)
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	finalPath := filepath.Join(dir, filePrefix+id+fileExtension)
	tempPath := finalPath + tempExtension

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("stream: create temp file: %w", err)
	}

	s := &fileStream{
		id:        id,
		file:      file,
		tempPath:  tempPath,
		finalPath: finalPath,
		hash:      sha256.New(),
	}
	s.buf = bufio.NewWriter(io.MultiWriter(file, s.hash))

	if _, err := s.buf.WriteString(MagicBytes); err != nil {
		file.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("stream: write magic: %w", err)
	}
	return s, nil
}

// ScopeDir returns the directory a scope maps to, for inspection tools.
func (f *FileFactory) ScopeDir(scope Scope) string {
	return f.scopeDir(scope)
}

func (f *FileFactory) scopeDir(scope Scope) string {
	if scope == ScopeShared {
		return filepath.Join(f.baseDir, "shared")
	}
	return filepath.Join(f.baseDir, fmt.Sprintf("chk-%d", f.checkpointID))
}

type fileStream struct {
	id        string
	tempPath  string
	finalPath string
	hash      hash.Hash

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	size   int64 // payload bytes, excluding magic and trailer
	closed bool
}

func (s *fileStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrStreamClosed
	}
	buf := s.buf
	s.mu.Unlock()

	// The write itself runs outside the lock so a concurrent Close can
	// fail a blocked write instead of queueing behind it.
	n, err := buf.Write(p)
	if err == nil {
		s.mu.Lock()
		s.size += int64(n)
		s.mu.Unlock()
	}
	return n, err
}

func (s *fileStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.buf.Flush()
}

func (s *fileStream) CloseAndGetHandle() (*domain.StateHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamClosed
	}
	s.closed = true

	if err := s.buf.Flush(); err != nil {
		s.abortLocked()
		return nil, err
	}

	// Checksum trailer over magic + payload; the trailer itself is not
	// part of the hash.
	sum := s.hash.Sum(nil)
	if _, err := s.file.Write(sum); err != nil {
		s.abortLocked()
		return nil, fmt.Errorf("stream: write checksum: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		s.abortLocked()
		return nil, fmt.Errorf("stream: sync: %w", err)
	}
	if err := s.file.Close(); err != nil {
		os.Remove(s.tempPath)
		return nil, fmt.Errorf("stream: close: %w", err)
	}
	if err := os.Rename(s.tempPath, s.finalPath); err != nil {
		os.Remove(s.tempPath)
		return nil, fmt.Errorf("stream: rename: %w", err)
	}

	return &domain.StateHandle{
		ID:       s.id,
		Location: s.finalPath,
		Size:     s.size,
		Checksum: hex.EncodeToString(sum),
	}, nil
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.abortLocked()
	return nil
}

func (s *fileStream) abortLocked() {
	s.file.Close()
	os.Remove(s.tempPath)
}

// OpenHandle validates a snapshot container file and returns a reader
// over its codec payload plus the payload size.
func OpenHandle(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if stat.Size() < MagicBytesSize+ChecksumSize {
		f.Close()
		return nil, 0, ErrChecksumMismatch
	}

	hashedLen := stat.Size() - ChecksumSize

	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, MagicBytesSize), magic); err != nil {
		f.Close()
		return nil, 0, err
	}
	if !bytes.Equal(magic, []byte(MagicBytes)) {
		f.Close()
		return nil, 0, ErrInvalidMagic
	}

	expected := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, hashedLen, ChecksumSize), expected); err != nil {
		f.Close()
		return nil, 0, err
	}

	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, hashedLen), hashedLen); err != nil {
		f.Close()
		return nil, 0, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		f.Close()
		return nil, 0, ErrChecksumMismatch
	}

	payloadLen := hashedLen - MagicBytesSize
	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(f, MagicBytesSize, payloadLen),
		file:          f,
	}, payloadLen, nil
}

type sectionReadCloser struct {
	*io.SectionReader
	file *os.File
}

func (r *sectionReadCloser) Close() error {
	return r.file.Close()
}
