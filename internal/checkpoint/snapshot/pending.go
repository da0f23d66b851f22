package snapshot

import (
	"context"
	"sync"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// Outcome is the terminal condition of a snapshot operation.
type Outcome int32

const (
	// OutcomePending means the asynchronous phase has not finished.
	OutcomePending Outcome = iota

	// OutcomeCompleted means a durable result was produced.
	OutcomeCompleted

	// OutcomeCancelled means the operation was cancelled on request.
	OutcomeCancelled

	// OutcomeFailed means the operation ended with an error.
	OutcomeFailed
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingSnapshot is the caller's handle on an in-flight snapshot. It
// resolves exactly once, to exactly one outcome. All methods are safe
// for concurrent use.
type PendingSnapshot struct {
	checkpointID domain.CheckpointID
	done         chan struct{}
	cancel       func()

	mu      sync.Mutex
	outcome Outcome
	result  *domain.SnapshotResult
	err     error
	metrics domain.CheckpointMetrics
}

func newPending(id domain.CheckpointID) *PendingSnapshot {
	return &PendingSnapshot{
		checkpointID: id,
		done:         make(chan struct{}),
	}
}

// CheckpointID returns the checkpoint this snapshot belongs to.
func (p *PendingSnapshot) CheckpointID() domain.CheckpointID {
	return p.checkpointID
}

// Done returns a channel closed when the snapshot reaches a terminal
// outcome.
func (p *PendingSnapshot) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the current outcome, OutcomePending while the
// asynchronous phase is still running.
func (p *PendingSnapshot) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Metrics returns the measurements recorded for this snapshot. Only
// meaningful after the snapshot resolved.
func (p *PendingSnapshot) Metrics() domain.CheckpointMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Await blocks until the snapshot resolves or ctx ends. A cancelled
// snapshot reports domain.ErrCheckpointCancelled; a failed one reports
// the preserved cause.
func (p *PendingSnapshot) Await(ctx context.Context) (*domain.SnapshotResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.outcome {
	case OutcomeCompleted:
		return p.result, nil
	case OutcomeCancelled:
		return nil, domain.ErrCheckpointCancelled
	default:
		return nil, p.err
	}
}

// Cancel requests cancellation of the asynchronous phase. It is
// idempotent, never blocks on snapshot I/O, and closes any stream the
// operation has created so a blocked write fails promptly. Cancelling
// an already resolved snapshot has no effect.
func (p *PendingSnapshot) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

// terminal returns the resolved result and error for reporting.
func (p *PendingSnapshot) terminal() (*domain.SnapshotResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// resolve records the terminal outcome. The first caller wins; later
// calls are ignored so the cancellation and failure paths cannot race
// each other into a double resolution.
func (p *PendingSnapshot) resolve(outcome Outcome, result *domain.SnapshotResult, err error, metrics domain.CheckpointMetrics) bool {
	p.mu.Lock()
	if p.outcome != OutcomePending {
		p.mu.Unlock()
		return false
	}
	p.outcome = outcome
	p.result = result
	p.err = err
	p.metrics = metrics
	p.mu.Unlock()
	close(p.done)
	return true
}
