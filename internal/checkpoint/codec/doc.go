// Package codec implements the binary wire format for keyed-state
// snapshots, grouped by key group.
//
// The format is a sequence of per-key-group blocks followed by a
// metadata block. Each block starts with the 4-byte group index and ends
// with the 2-byte end-of-key-group mark 0xFFFF written in the key-length
// position; the mark is why 0xFFFF can never be a real key-group index.
// A single bit in the first byte of an entry's key (mask 0x80) signals
// that a metadata record, the owning state id, follows the key bytes.
//
// The codec is pure: it performs no I/O of its own and is safe to drive
// from any goroutine that owns the destination writer.
//
// @req RQ-0102
// @design DS-0103
package codec
