package snapshot

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/streammesh-go/internal/checkpoint/stream"
	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/internal/telemetry/metric"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// ReadView is a frozen iterator over captured state entries. Entries
// arrive in key-group-major order, then by state id, then by key. Next
// returns io.EOF after the last entry. Release frees the underlying
// snapshot resources and must be called exactly once; the operation
// owns that call.
type ReadView interface {
	Next() (*domain.StateEntry, error)
	Release()
}

// ViewFunc captures a consistent read view of the store. It runs on
// the trigger goroutine during the synchronous phase.
type ViewFunc func() (ReadView, error)

// Config carries coordinator construction parameters.
type Config struct {
	// Range is the key-group range this backend instance owns.
	Range keygroup.Range

	// Scope is the default sharing scope for snapshot streams.
	Scope stream.Scope

	// Workers and QueueDepth size the asynchronous executor.
	Workers    int
	QueueDepth int

	Logger    *slog.Logger
	Metrics   *metric.Registry
	Responder Responder
}

// Coordinator triggers snapshots. At most one snapshot per coordinator
// is in flight at a time; the synchronous capture phase runs on the
// caller's goroutine and the materialization phase on the executor.
type Coordinator struct {
	view      ViewFunc
	registry  *domain.StateRegistry
	rng       keygroup.Range
	scope     stream.Scope
	exec      *Executor
	log       *slog.Logger
	metrics   *metric.Registry
	responder Responder

	inFlight atomic.Bool
	current  atomic.Pointer[Operation]
	closed   atomic.Bool
}

// NewCoordinator creates a snapshot coordinator over the given view
// source and state registry.
func NewCoordinator(view ViewFunc, registry *domain.StateRegistry, cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	scope := cfg.Scope
	if scope == "" {
		scope = stream.ScopeExclusive
	}
	responder := cfg.Responder
	if responder == nil {
		responder = NewLogResponder(log)
	}
	return &Coordinator{
		view:      view,
		registry:  registry,
		rng:       cfg.Range,
		scope:     scope,
		exec:      NewExecutor(cfg.Workers, cfg.QueueDepth),
		log:       log,
		metrics:   cfg.Metrics,
		responder: responder,
	}
}

// Snapshot triggers a snapshot for the given checkpoint. The call
// performs only the synchronous capture phase: on return the store may
// be mutated again without affecting the snapshot contents. The
// asynchronous phase resolves the returned PendingSnapshot.
//
// With no registered state the snapshot resolves immediately to the
// explicit empty result and no stream is ever created.
func (c *Coordinator) Snapshot(cp domain.Checkpoint, factory stream.Factory) (*PendingSnapshot, error) {
	if c.closed.Load() {
		return nil, domain.ErrBackendUnavailable.WithDetails("coordinator closed")
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrSnapshotInProgress
	}

	syncStart := time.Now()
	metas := c.registry.Snapshot()

	if len(metas) == 0 {
		pending := newPending(cp.ID)
		metrics := domain.CheckpointMetrics{SyncDuration: time.Since(syncStart)}
		pending.resolve(OutcomeCompleted, domain.EmptySnapshotResult(), nil, metrics)
		c.inFlight.Store(false)
		c.observe(OutcomeCompleted, metrics)
		c.responder.AcknowledgeCheckpoint(cp.ID, domain.EmptySnapshotResult(), metrics)
		c.log.Debug("empty snapshot", "checkpoint_id", uint64(cp.ID))
		return pending, nil
	}

	view, err := c.view()
	if err != nil {
		c.inFlight.Store(false)
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}
	syncDuration := time.Since(syncStart)

	pending := newPending(cp.ID)
	op := &Operation{
		checkpoint:   cp,
		rng:          c.rng,
		scope:        c.scope,
		factory:      factory,
		view:         view,
		metas:        metas,
		pending:      pending,
		log:          c.log,
		syncDuration: syncDuration,
		onFinish:     c.finished,
	}
	op.state.Store(stateCaptured)
	pending.cancel = op.Cancel
	c.current.Store(op)

	if err := c.exec.Submit(op.run); err != nil {
		view.Release()
		c.current.Store(nil)
		c.inFlight.Store(false)
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}

	if c.metrics != nil {
		c.metrics.SnapshotsStarted.Inc()
		c.metrics.SnapshotsInFlight.Inc()
		c.metrics.SyncDuration.Observe(syncDuration.Seconds())
	}
	c.log.Debug("snapshot scheduled",
		"checkpoint_id", uint64(cp.ID),
		"states", len(metas),
		"sync_duration", syncDuration,
	)
	return pending, nil
}

// finished runs on the executor goroutine after the operation resolved
// its pending handle. It frees the in-flight slot and reports the
// outcome; reporting is best-effort and never blocks the pipeline.
func (c *Coordinator) finished(op *Operation, outcome Outcome) {
	c.current.CompareAndSwap(op, nil)
	c.inFlight.Store(false)

	metrics := op.pending.Metrics()
	if c.metrics != nil {
		c.metrics.SnapshotsInFlight.Dec()
	}
	c.observe(outcome, metrics)

	result, err := op.pending.terminal()
	switch outcome {
	case OutcomeCompleted:
		c.responder.AcknowledgeCheckpoint(op.checkpoint.ID, result, metrics)
	case OutcomeCancelled:
		c.responder.DeclineCheckpoint(op.checkpoint.ID, domain.ErrCheckpointCancelled)
	case OutcomeFailed:
		c.responder.DeclineCheckpoint(op.checkpoint.ID, err)
	}
}

func (c *Coordinator) observe(outcome Outcome, metrics domain.CheckpointMetrics) {
	if c.metrics == nil {
		return
	}
	switch outcome {
	case OutcomeCompleted:
		c.metrics.SnapshotsCompleted.Inc()
		c.metrics.AsyncDuration.Observe(metrics.AsyncDuration.Seconds())
		c.metrics.BytesWritten.Add(float64(metrics.BytesWritten))
		c.metrics.EntriesWritten.Add(float64(metrics.EntryCount))
	case OutcomeCancelled:
		c.metrics.SnapshotsCancelled.Inc()
	case OutcomeFailed:
		c.metrics.SnapshotsFailed.Inc()
	}
}

// Close cancels any in-flight snapshot and shuts the executor down,
// draining queued work. Further Snapshot calls fail with
// ErrBackendUnavailable.
func (c *Coordinator) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if op := c.current.Load(); op != nil {
		op.Cancel()
	}
	c.exec.Close()
}
