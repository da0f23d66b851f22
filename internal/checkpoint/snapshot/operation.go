package snapshot

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/streammesh-go/internal/checkpoint/codec"
	"github.com/yndnr/streammesh-go/internal/checkpoint/stream"
	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// Operation lifecycle states.
const (
	stateCreated int32 = iota
	stateCaptured
	stateRunning
	stateCompleted
	stateCancelled
	stateFailed
)

// Operation is one snapshot attempt. The coordinator builds it during
// the synchronous phase; run executes the asynchronous phase on the
// executor. Exactly one terminal transition happens, and the read view
// and any created stream are each released exactly once.
type Operation struct {
	checkpoint   domain.Checkpoint
	rng          keygroup.Range
	scope        stream.Scope
	factory      stream.Factory
	view         ReadView
	metas        []domain.StateMetaInfo
	pending      *PendingSnapshot
	log          *slog.Logger
	syncDuration time.Duration
	onFinish     func(op *Operation, outcome Outcome)

	state       atomic.Int32
	cancelled   atomic.Bool
	releaseView sync.Once

	mu  sync.Mutex
	out stream.Stream
}

// Cancel flips the cancellation flag and closes the stream if one has
// been created, so a write blocked inside the asynchronous phase fails
// instead of finishing the materialization.
func (o *Operation) Cancel() {
	if !o.cancelled.CompareAndSwap(false, true) {
		return
	}
	o.mu.Lock()
	out := o.out
	o.mu.Unlock()
	if out != nil {
		out.Close()
	}
}

// registerStream makes the stream visible to Cancel. If cancellation
// raced ahead of registration the stream is closed here, so no stream
// ever outlives a cancelled operation.
func (o *Operation) registerStream(s stream.Stream) {
	o.mu.Lock()
	o.out = s
	o.mu.Unlock()
	if o.cancelled.Load() {
		s.Close()
	}
}

// run is the asynchronous materialization phase.
func (o *Operation) run() {
	o.state.Store(stateRunning)
	defer o.releaseView.Do(o.view.Release)

	start := time.Now()
	if o.cancelled.Load() {
		o.finish(OutcomeCancelled, nil, nil, start, nil, 0, 0)
		return
	}

	out, err := o.factory.Create(o.scope)
	if err != nil {
		o.finish(OutcomeFailed, nil, err, start, nil, 0, 0)
		return
	}
	o.registerStream(out)

	sink := &countingWriter{dst: out}
	w, err := codec.NewWriter(sink, o.rng)
	if err != nil {
		o.abort(err, out, start, sink, 0)
		return
	}

	for {
		if o.cancelled.Load() {
			o.finish(OutcomeCancelled, nil, nil, start, out, sink.n, w.EntriesWritten())
			return
		}
		entry, err := o.view.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.abort(err, out, start, sink, w.EntriesWritten())
			return
		}
		if err := w.WriteEntry(entry); err != nil {
			o.abort(err, out, start, sink, w.EntriesWritten())
			return
		}
	}

	if err := w.Finish(o.metas); err != nil {
		o.abort(err, out, start, sink, w.EntriesWritten())
		return
	}
	if err := out.Flush(); err != nil {
		o.abort(err, out, start, sink, w.EntriesWritten())
		return
	}
	handle, err := out.CloseAndGetHandle()
	if err != nil {
		o.abort(err, out, start, sink, w.EntriesWritten())
		return
	}

	o.state.Store(stateCompleted)
	metrics := o.buildMetrics(start, sink.n, w.EntriesWritten())
	o.pending.resolve(OutcomeCompleted, domain.SnapshotOfHandle(handle), nil, metrics)
	if o.onFinish != nil {
		o.onFinish(o, OutcomeCompleted)
	}
}

// abort classifies a write-path error. Errors observed after a
// cancellation request are the expected consequence of the stream being
// closed underneath the writer and resolve as cancelled, not failed.
func (o *Operation) abort(err error, out stream.Stream, start time.Time, sink *countingWriter, entries int64) {
	if o.cancelled.Load() || errors.Is(err, stream.ErrStreamClosed) {
		o.cancelled.Store(true)
		o.finish(OutcomeCancelled, nil, nil, start, out, sink.n, entries)
		return
	}
	o.finish(OutcomeFailed, nil, err, start, out, sink.n, entries)
}

// finish performs the terminal transition. On the failure path the
// stream close error is swallowed so the original cause survives.
func (o *Operation) finish(outcome Outcome, result *domain.SnapshotResult, cause error, start time.Time, out stream.Stream, bytes, entries int64) {
	if out != nil {
		if err := out.Close(); err != nil && o.log != nil {
			o.log.Debug("snapshot stream close after abort",
				"checkpoint_id", uint64(o.checkpoint.ID), "error", err)
		}
	}
	o.releaseView.Do(o.view.Release)

	metrics := o.buildMetrics(start, bytes, entries)
	switch outcome {
	case OutcomeCancelled:
		o.state.Store(stateCancelled)
		o.pending.resolve(OutcomeCancelled, nil, nil, metrics)
	case OutcomeFailed:
		o.state.Store(stateFailed)
		o.pending.resolve(OutcomeFailed, nil, domain.ErrSerializationFailure.WithCause(cause), metrics)
	default:
		o.state.Store(stateCompleted)
		o.pending.resolve(OutcomeCompleted, result, nil, metrics)
	}
	if o.onFinish != nil {
		o.onFinish(o, outcome)
	}
}

func (o *Operation) buildMetrics(start time.Time, bytes, entries int64) domain.CheckpointMetrics {
	return domain.CheckpointMetrics{
		SyncDuration:  o.syncDuration,
		AsyncDuration: time.Since(start),
		BytesWritten:  bytes,
		EntryCount:    entries,
	}
}

// countingWriter tracks payload bytes handed to the stream.
type countingWriter struct {
	dst io.Writer
	n   int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.dst.Write(p)
	c.n += int64(n)
	return n, err
}
