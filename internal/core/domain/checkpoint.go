package domain

import (
	"time"
)

// CheckpointID identifies one checkpoint attempt. IDs are assigned by the
// external orchestrator and are monotonically increasing per job.
type CheckpointID uint64

// Checkpoint pairs a checkpoint id with its trigger timestamp.
type Checkpoint struct {
	ID CheckpointID

	// Timestamp is the trigger time in Unix milliseconds.
	Timestamp int64
}

// NewCheckpoint creates checkpoint metadata with the current time.
func NewCheckpoint(id CheckpointID) Checkpoint {
	return Checkpoint{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	}
}

// StateHandle is a durable reference to a fully written snapshot.
// A handle is only ever produced for completely materialized data,
// never for a partially written stream.
type StateHandle struct {
	// ID is a ULID assigned when the stream was created.
	ID string `json:"id"`

	// Location is where the bytes live (file path for the file store).
	Location string `json:"location"`

	// Size is the payload size in bytes, excluding container framing.
	Size int64 `json:"size"`

	// Checksum is the hex-encoded SHA-256 over the container payload.
	Checksum string `json:"checksum"`
}

// SnapshotResult is the terminal product of a completed snapshot: either
// a durable handle, or an explicit empty marker when the backend held no
// registered state at capture time.
type SnapshotResult struct {
	Handle *StateHandle `json:"handle,omitempty"`
	Empty  bool         `json:"empty,omitempty"`
}

// EmptySnapshotResult returns the explicit empty marker.
func EmptySnapshotResult() *SnapshotResult {
	return &SnapshotResult{Empty: true}
}

// SnapshotOfHandle wraps a durable handle into a result.
func SnapshotOfHandle(h *StateHandle) *SnapshotResult {
	return &SnapshotResult{Handle: h}
}

// CheckpointMetrics carries best-effort measurements reported to the
// checkpoint responder. Reporting never blocks the snapshot pipeline.
type CheckpointMetrics struct {
	// SyncDuration is the time spent in the synchronous capture phase.
	SyncDuration time.Duration `json:"sync_duration"`

	// AsyncDuration is the time spent in the asynchronous write phase.
	AsyncDuration time.Duration `json:"async_duration"`

	// BytesWritten is the number of payload bytes materialized.
	BytesWritten int64 `json:"bytes_written"`

	// EntryCount is the number of state entries written.
	EntryCount int64 `json:"entry_count"`
}
