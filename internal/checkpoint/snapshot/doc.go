// Package snapshot implements the two-phase asynchronous snapshot
// pipeline.
//
// A snapshot runs in two phases. The synchronous capture phase runs on
// the caller's goroutine: it freezes a consistent read view of the
// store and the registered state metadata, then returns a pending
// handle. The asynchronous materialization phase runs on the executor:
// it drains the view through the key-group codec into a scoped stream
// and resolves the pending handle with exactly one terminal outcome.
//
//   - coordinator.go: trigger entry point, single in-flight admission
//   - operation.go: per-snapshot state machine and write loop
//   - pending.go: awaitable result slot with cancellation
//   - executor.go: bounded worker pool for the asynchronous phase
//   - responder.go: checkpoint acknowledge/decline reporting
//
// @req RQ-0102
// @design DS-0102
package snapshot
