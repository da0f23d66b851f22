package domain

import (
	"fmt"
	"sync"
)

// StateMetaInfo describes one named state container registered with a
// backend instance. The id is assigned on first registration and is
// stable for the lifetime of the backend; ids are written to snapshots
// in registration order.
type StateMetaInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	// Serializer descriptors. These version the snapshot payload
	// implicitly; there is no separate format header.
	KeySerializer       string `json:"key_serializer"`
	NamespaceSerializer string `json:"namespace_serializer"`
	ValueSerializer     string `json:"value_serializer"`
}

// StateEntry is one logical keyed-state record: the owning state, the
// key group the key hashes into, and the raw key/namespace/value bytes.
type StateEntry struct {
	StateID   int
	KeyGroup  int
	Key       []byte
	Namespace []byte
	Value     []byte
}

// Clone returns a deep copy of the entry.
func (e *StateEntry) Clone() *StateEntry {
	return &StateEntry{
		StateID:   e.StateID,
		KeyGroup:  e.KeyGroup,
		Key:       append([]byte(nil), e.Key...),
		Namespace: append([]byte(nil), e.Namespace...),
		Value:     append([]byte(nil), e.Value...),
	}
}

// StateRegistry tracks registered states and assigns stable ids in
// registration order. Safe for concurrent use.
type StateRegistry struct {
	mu     sync.RWMutex
	byName map[string]*StateMetaInfo
	order  []*StateMetaInfo
}

// NewStateRegistry creates an empty registry.
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{
		byName: make(map[string]*StateMetaInfo),
	}
}

// Register registers a state by name, or returns the existing meta info
// if the name is already registered with identical serializer descriptors.
func (r *StateRegistry) Register(name, keySer, nsSer, valSer string) (*StateMetaInfo, error) {
	if name == "" {
		return nil, ErrMissingArgument.WithDetails("state name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing.KeySerializer != keySer ||
			existing.NamespaceSerializer != nsSer ||
			existing.ValueSerializer != valSer {
			return nil, ErrStateConflict.WithDetails(name)
		}
		return existing, nil
	}

	meta := &StateMetaInfo{
		ID:                  len(r.order),
		Name:                name,
		KeySerializer:       keySer,
		NamespaceSerializer: nsSer,
		ValueSerializer:     valSer,
	}
	r.byName[name] = meta
	r.order = append(r.order, meta)
	return meta, nil
}

// Lookup returns the meta info for a registered state name.
func (r *StateRegistry) Lookup(name string) (*StateMetaInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.byName[name]
	if !ok {
		return nil, ErrStateNotRegistered.WithDetails(name)
	}
	return meta, nil
}

// Snapshot returns a copy of all registered states in registration order.
func (r *StateRegistry) Snapshot() []StateMetaInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StateMetaInfo, len(r.order))
	for i, meta := range r.order {
		out[i] = *meta
	}
	return out
}

// Count returns the number of registered states.
func (r *StateRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Restore seeds the registry from snapshot metadata. Ids must be dense
// and in registration order, as written by the snapshot codec.
func (r *StateRegistry) Restore(metas []StateMetaInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) != 0 {
		return ErrStateConflict.WithDetails("registry not empty")
	}
	for i := range metas {
		meta := metas[i]
		if meta.ID != i {
			return ErrInvalidArgument.WithDetails(
				fmt.Sprintf("state id %d at position %d", meta.ID, i))
		}
		m := meta
		r.byName[m.Name] = &m
		r.order = append(r.order, &m)
	}
	return nil
}
