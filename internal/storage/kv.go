package storage

import (
	"context"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// Store is a keyed state store covering one key-group range.
//
// Implementations must be safe for concurrent use. Entries handed to
// Put are owned by the store afterwards; callers must not mutate them.
type Store interface {
	// Put inserts or replaces the entry for its (state, key, namespace)
	// triple. The entry's key group must lie in the store's range.
	Put(ctx context.Context, entry *domain.StateEntry) error

	// Get returns the value for the triple, or ErrEntryNotFound.
	Get(ctx context.Context, stateID int, keyGroup int, key, namespace []byte) ([]byte, error)

	// Delete removes the triple. Deleting an absent entry is not an
	// error.
	Delete(ctx context.Context, stateID int, keyGroup int, key, namespace []byte) error

	// View freezes a consistent read view. Later mutations do not
	// appear in it. Entries iterate in key-group-major order with a
	// deterministic order inside each group.
	View() (ReadView, error)

	// Load replaces the store contents with the given entries. Used
	// during restore; not safe to run concurrently with mutations.
	Load(entries []*domain.StateEntry) error

	// Count returns the number of live entries.
	Count() (int64, error)

	// Close releases the store. Further operations fail with
	// ErrStoreClosed.
	Close() error
}

// ReadView iterates a frozen store snapshot. Next returns io.EOF after
// the last entry. Release must be called exactly once to free the
// underlying resources.
type ReadView interface {
	Next() (*domain.StateEntry, error)
	Release()
}
