// Package storage provides the keyed state backend for StreamMesh.
//
// The backend owns a contiguous key-group range and keeps one entry
// per (state, key, namespace) triple. Two store engines implement the
// same interface: an in-memory store sharded by key group, and a
// Badger-backed store for state larger than memory. Mutations pass
// through the write-ahead changelog before they are applied, and the
// snapshot coordinator captures consistent read views for
// checkpointing.
//
//   - kv.go: Store and ReadView interfaces plus engine configuration
//   - badger.go: Badger store engine
//   - engine.go: Backend wiring stores, changelog and checkpoints
//   - memory/: in-memory store engine
//   - wal/: write-ahead changelog
//
// @req RQ-0401
// @design DS-0401
package storage
