// Package wal provides the write-ahead changelog for state mutations.
//
// Every Put and Delete against the state backend is appended here
// before it is applied, so a crash between two completed checkpoints
// loses no acknowledged mutation. Recovery restores the latest
// completed checkpoint and replays the changelog tail from the offset
// captured at snapshot time.
//
// Segment files carry a magic header and a SHA-256 trailer written at
// finalization. Each record is length-prefixed and CRC-protected, and
// the record payload can optionally be encrypted with an adaptive
// cipher. Offsets are composite: (segmentID<<32 | byte offset within
// the segment).
//
//   - entry.go: changelog record model
//   - codec.go: binary record framing
//   - writer.go: segmented append path with batch or sync durability
//   - reader.go: multi-segment replay with corruption tolerance
//   - compactor.go: segment removal behind the checkpoint offset
//
// @req RQ-0402
// @design DS-0401
package wal
