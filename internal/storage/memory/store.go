package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// Store is an in-memory keyed state store sharded by key group.
type Store struct {
	rng    keygroup.Range
	shards []*shard

	count  atomic.Int64
	closed atomic.Bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*domain.StateEntry
}

// New creates a store owning the given key-group range.
func New(rng keygroup.Range) *Store {
	shards := make([]*shard, rng.Count())
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*domain.StateEntry)}
	}
	return &Store{rng: rng, shards: shards}
}

// Range returns the owned key-group range.
func (s *Store) Range() keygroup.Range {
	return s.rng
}

func (s *Store) shardFor(group int) (*shard, error) {
	if !s.rng.Contains(group) {
		return nil, domain.ErrKeyGroupOutOfRange.WithDetails(s.rng.String())
	}
	return s.shards[group-s.rng.Start], nil
}

// compositeKey builds the map key for a (state, key, namespace)
// triple. The state id prefix keeps triples of different states apart
// even when key bytes collide.
func compositeKey(stateID int, key, namespace []byte) string {
	buf := make([]byte, 0, 4+len(key)+len(namespace))
	var b2 [2]byte
	binary.BigEndian.PutUint16(b2[:], uint16(stateID))
	buf = append(buf, b2[:]...)
	binary.BigEndian.PutUint16(b2[:], uint16(len(key)))
	buf = append(buf, b2[:]...)
	buf = append(buf, key...)
	buf = append(buf, namespace...)
	return string(buf)
}

// Put implements storage.Store.
func (s *Store) Put(_ context.Context, entry *domain.StateEntry) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	sh, err := s.shardFor(entry.KeyGroup)
	if err != nil {
		return err
	}

	k := compositeKey(entry.StateID, entry.Key, entry.Namespace)
	clone := entry.Clone()

	sh.mu.Lock()
	_, existed := sh.entries[k]
	sh.entries[k] = clone
	sh.mu.Unlock()

	if !existed {
		s.count.Add(1)
	}
	return nil
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, stateID int, keyGroup int, key, namespace []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	sh, err := s.shardFor(keyGroup)
	if err != nil {
		return nil, err
	}

	k := compositeKey(stateID, key, namespace)
	sh.mu.RLock()
	entry, ok := sh.entries[k]
	sh.mu.RUnlock()
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return append([]byte(nil), entry.Value...), nil
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, stateID int, keyGroup int, key, namespace []byte) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	sh, err := s.shardFor(keyGroup)
	if err != nil {
		return err
	}

	k := compositeKey(stateID, key, namespace)
	sh.mu.Lock()
	_, existed := sh.entries[k]
	delete(sh.entries, k)
	sh.mu.Unlock()

	if existed {
		s.count.Add(-1)
	}
	return nil
}

// View freezes a consistent read view. Each shard is copied under its
// own lock; stored entries are never mutated in place, so the copied
// pointers stay stable. Sorting happens lazily on the reader's
// goroutine.
func (s *Store) View() (*View, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}

	groups := make([][]*domain.StateEntry, len(s.shards))
	for i, sh := range s.shards {
		sh.mu.RLock()
		if len(sh.entries) > 0 {
			out := make([]*domain.StateEntry, 0, len(sh.entries))
			for _, e := range sh.entries {
				out = append(out, e)
			}
			groups[i] = out
		}
		sh.mu.RUnlock()
	}
	return &View{groups: groups}, nil
}

// View is a frozen iterator over captured entries.
type View struct {
	groups [][]*domain.StateEntry
	gi     int
	ei     int
	sorted bool
}

// Next returns entries in key-group-major order, then state id, then
// key bytes, then namespace. io.EOF follows the last entry.
func (v *View) Next() (*domain.StateEntry, error) {
	for {
		if v.gi >= len(v.groups) {
			return nil, io.EOF
		}
		group := v.groups[v.gi]
		if v.ei >= len(group) {
			v.gi++
			v.ei = 0
			v.sorted = false
			continue
		}
		if !v.sorted {
			sortEntries(group)
			v.sorted = true
		}
		e := group[v.ei]
		v.ei++
		return e, nil
	}
}

// Release frees the captured entries.
func (v *View) Release() {
	v.groups = nil
}

func sortEntries(entries []*domain.StateEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.StateID != b.StateID {
			return a.StateID < b.StateID
		}
		if c := bytes.Compare(a.Key, b.Key); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Namespace, b.Namespace) < 0
	})
}

// Load implements storage.Store.
func (s *Store) Load(entries []*domain.StateEntry) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}

	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]*domain.StateEntry)
		sh.mu.Unlock()
	}
	s.count.Store(0)

	for _, e := range entries {
		if err := s.Put(context.Background(), e); err != nil {
			return err
		}
	}
	return nil
}

// Count implements storage.Store.
func (s *Store) Count() (int64, error) {
	if s.closed.Load() {
		return 0, domain.ErrStoreClosed
	}
	return s.count.Load(), nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
