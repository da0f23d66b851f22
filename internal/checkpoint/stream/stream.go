package stream

import (
	"errors"
	"io"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// Scope declares how the written bytes may be referenced.
type Scope string

const (
	// ScopeExclusive marks bytes owned by exactly one checkpoint.
	ScopeExclusive Scope = "exclusive"

	// ScopeShared marks bytes that later checkpoints may reference.
	ScopeShared Scope = "shared"
)

// Errors for stream lifecycle violations.
var (
	ErrStreamClosed = errors.New("stream: closed")
	ErrStreamFull   = errors.New("stream: max size exceeded")
)

// Stream is an append-only checkpoint byte sink.
//
// Close may be called concurrently with a blocked Write; the write must
// then fail promptly rather than hang. After either close-family call,
// all further operations return ErrStreamClosed.
type Stream interface {
	io.Writer

	// Flush pushes buffered bytes to the backing medium.
	Flush() error

	// CloseAndGetHandle finalizes the stream and returns a durable
	// handle. Only ever called on the success path.
	CloseAndGetHandle() (*domain.StateHandle, error)

	// Close aborts the stream and discards partial data. Used on the
	// cancellation and failure paths; safe to call more than once.
	Close() error
}

// Factory creates scoped streams for one checkpoint.
type Factory interface {
	Create(scope Scope) (Stream, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(scope Scope) (Stream, error)

// Create implements Factory.
func (f FactoryFunc) Create(scope Scope) (Stream, error) {
	return f(scope)
}
