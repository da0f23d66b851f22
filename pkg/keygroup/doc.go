// Package keygroup implements key-group partitioning of the keyspace.
//
// A key group is the smallest unit in which keyed state is distributed
// and checkpointed. Every key hashes to exactly one key group, and every
// worker owns a contiguous, inclusive range of key groups. Recovery can
// re-split ranges to a different parallelism without rehashing keys.
//
// @req RQ-0201
// @design DS-0201
package keygroup
