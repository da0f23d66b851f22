// Package memory provides the in-memory store engine.
//
// Entries are sharded by key group with one lock per group, so keys
// hashing to different groups never contend. A read view snapshots
// each shard's entries under its lock and defers sorting to the
// consumer's goroutine, keeping the capture phase short.
package memory
