// Package stream provides scoped checkpoint output streams.
//
// A scoped stream is an append-only byte sink bound to one checkpoint
// and a sharing scope. Exclusive streams belong to a single checkpoint;
// shared streams may be referenced by later checkpoints (incremental
// strategies). Every stream ends in exactly one close-family call:
// CloseAndGetHandle on the success path, Close on the cancellation and
// failure paths.
//
// @req RQ-0103
// @design DS-0103
package stream
