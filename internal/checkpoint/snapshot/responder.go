package snapshot

import (
	"log/slog"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// Responder receives terminal checkpoint reports. Implementations must
// not block; reporting is best-effort and runs on the executor
// goroutine after the snapshot has already resolved.
type Responder interface {
	// AcknowledgeCheckpoint reports a completed snapshot.
	AcknowledgeCheckpoint(id domain.CheckpointID, result *domain.SnapshotResult, metrics domain.CheckpointMetrics)

	// DeclineCheckpoint reports a cancelled or failed snapshot with its
	// cause.
	DeclineCheckpoint(id domain.CheckpointID, cause error)
}

// LogResponder reports checkpoint outcomes to the log. It stands in
// for an orchestrator connection in single-process deployments.
type LogResponder struct {
	log *slog.Logger
}

// NewLogResponder creates a responder writing to log.
func NewLogResponder(log *slog.Logger) *LogResponder {
	if log == nil {
		log = slog.Default()
	}
	return &LogResponder{log: log}
}

// AcknowledgeCheckpoint implements Responder.
func (r *LogResponder) AcknowledgeCheckpoint(id domain.CheckpointID, result *domain.SnapshotResult, metrics domain.CheckpointMetrics) {
	attrs := []any{
		"checkpoint_id", uint64(id),
		"empty", result.Empty,
		"sync_duration", metrics.SyncDuration,
		"async_duration", metrics.AsyncDuration,
		"bytes", metrics.BytesWritten,
		"entries", metrics.EntryCount,
	}
	if result.Handle != nil {
		attrs = append(attrs, "handle", result.Handle.ID, "location", result.Handle.Location)
	}
	r.log.Info("checkpoint acknowledged", attrs...)
}

// DeclineCheckpoint implements Responder.
func (r *LogResponder) DeclineCheckpoint(id domain.CheckpointID, cause error) {
	r.log.Warn("checkpoint declined",
		"checkpoint_id", uint64(id),
		"cause", cause,
	)
}
