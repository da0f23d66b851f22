// Package cmap provides a concurrent map implementation for StreamMesh.
//
// This package implements a sharded concurrent map optimized for
// high-throughput per-key tracking, such as per-client rate limiter
// state, with the following features:
//
//   - Sharding: Configurable shard count for parallelism
//   - Fine-grained Locking: Per-shard RWMutex for minimal contention
//   - Optimistic Locking: Version-based compare-and-swap updates
//   - Iteration: Safe iteration while holding read locks
//
// Usage:
//
//	m := cmap.New[string, *rate.Limiter](cmap.WithShardCount(32))
//	m.Set("10.0.0.1", limiter)
//	val, ok := m.Get("10.0.0.1")
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete) use Lock.
//
// @adr AD-0102
package cmap
