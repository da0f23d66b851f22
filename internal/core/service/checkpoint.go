package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/internal/storage"
)

// CheckpointService drives snapshot triggering and inspection.
type CheckpointService struct {
	backend *storage.Backend
	log     *slog.Logger

	// lastID hands out ids when the caller does not supply one.
	lastID atomic.Uint64
}

// NewCheckpointService creates a new CheckpointService.
func NewCheckpointService(backend *storage.Backend, log *slog.Logger) *CheckpointService {
	if log == nil {
		log = slog.Default()
	}
	s := &CheckpointService{backend: backend, log: log}
	if md := backend.LastCheckpoint(); md != nil {
		s.lastID.Store(uint64(md.CheckpointID))
	}
	return s
}

// TriggerCheckpointRequest contains parameters for a checkpoint trigger.
type TriggerCheckpointRequest struct {
	// CheckpointID is the orchestrator-assigned id. Zero lets the
	// service assign the next id itself.
	CheckpointID uint64

	// Wait blocks until the asynchronous phase resolves.
	Wait bool
}

// TriggerCheckpointResponse contains the result of a checkpoint trigger.
type TriggerCheckpointResponse struct {
	CheckpointID uint64
	Outcome      string
	Result       *domain.SnapshotResult
	Metrics      domain.CheckpointMetrics
}

// Trigger starts a snapshot. Without Wait the response carries the
// pending outcome; the checkpoint listing reflects completion later.
func (s *CheckpointService) Trigger(ctx context.Context, req *TriggerCheckpointRequest) (*TriggerCheckpointResponse, error) {
	id := req.CheckpointID
	if id == 0 {
		id = s.lastID.Add(1)
	} else {
		s.bumpTo(id)
	}

	pending, err := s.backend.TriggerCheckpoint(ctx, domain.CheckpointID(id))
	if err != nil {
		return nil, err
	}

	resp := &TriggerCheckpointResponse{CheckpointID: id}
	if !req.Wait {
		resp.Outcome = pending.Outcome().String()
		return resp, nil
	}

	result, err := pending.Await(ctx)
	if err != nil {
		return nil, err
	}
	resp.Outcome = pending.Outcome().String()
	resp.Result = result
	resp.Metrics = pending.Metrics()
	return resp, nil
}

func (s *CheckpointService) bumpTo(id uint64) {
	for {
		cur := s.lastID.Load()
		if cur >= id || s.lastID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// List returns completed checkpoints, oldest first.
func (s *CheckpointService) List(_ context.Context) ([]*storage.CheckpointMetadata, error) {
	return s.backend.Checkpoints()
}

// Latest returns the most recent completed checkpoint, or
// ErrCheckpointNotFound when none exists.
func (s *CheckpointService) Latest(_ context.Context) (*storage.CheckpointMetadata, error) {
	if md := s.backend.LastCheckpoint(); md != nil {
		return md, nil
	}
	return nil, domain.ErrCheckpointNotFound
}

// RestoreRequest contains parameters for a checkpoint restore.
type RestoreRequest struct {
	// CheckpointID selects the checkpoint. Zero restores the latest.
	CheckpointID uint64
}

// Restore loads a completed checkpoint into the backend, replacing
// current state. The changelog tail is not replayed; a restore rewinds
// to exactly the checkpoint contents.
func (s *CheckpointService) Restore(ctx context.Context, req *RestoreRequest) (*storage.CheckpointMetadata, error) {
	checkpoints, err := s.backend.Checkpoints()
	if err != nil {
		return nil, err
	}

	var target *storage.CheckpointMetadata
	for _, md := range checkpoints {
		if req.CheckpointID == 0 || uint64(md.CheckpointID) == req.CheckpointID {
			target = md
		}
	}
	if target == nil {
		return nil, domain.ErrCheckpointNotFound
	}

	if err := s.backend.Restore(ctx, target); err != nil {
		return nil, err
	}
	s.log.Info("checkpoint restored on request", "checkpoint_id", uint64(target.CheckpointID))
	return target, nil
}
