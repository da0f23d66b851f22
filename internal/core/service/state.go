package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/internal/storage"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// StateService handles keyed state operations.
type StateService struct {
	backend *storage.Backend
	log     *slog.Logger
}

// NewStateService creates a new StateService.
func NewStateService(backend *storage.Backend, log *slog.Logger) *StateService {
	if log == nil {
		log = slog.Default()
	}
	return &StateService{backend: backend, log: log}
}

// RegisterStateRequest contains parameters for state registration.
type RegisterStateRequest struct {
	Name                string // Required
	KeySerializer       string // Required
	NamespaceSerializer string // Required
	ValueSerializer     string // Required
}

// RegisterStateResponse contains the result of state registration.
type RegisterStateResponse struct {
	StateID int
	Name    string
}

// Register registers a named state. Registration is idempotent for
// identical serializer descriptors and conflicts otherwise.
func (s *StateService) Register(_ context.Context, req *RegisterStateRequest) (*RegisterStateResponse, error) {
	if req.Name == "" {
		return nil, domain.ErrMissingArgument.WithDetails("name is required")
	}
	if req.KeySerializer == "" || req.NamespaceSerializer == "" || req.ValueSerializer == "" {
		return nil, domain.ErrMissingArgument.WithDetails("all serializer descriptors are required")
	}

	meta, err := s.backend.RegisterState(req.Name, req.KeySerializer, req.NamespaceSerializer, req.ValueSerializer)
	if err != nil {
		return nil, err
	}

	s.log.Debug("state registered", "name", meta.Name, "state_id", meta.ID)
	return &RegisterStateResponse{StateID: meta.ID, Name: meta.Name}, nil
}

// PutStateRequest contains parameters for a state write.
type PutStateRequest struct {
	State     string // Required
	Key       []byte // Required
	Namespace []byte // Optional
	Value     []byte // Required
}

// Put writes a value for (state, key, namespace).
func (s *StateService) Put(ctx context.Context, req *PutStateRequest) error {
	if req.State == "" {
		return domain.ErrMissingArgument.WithDetails("state is required")
	}
	if len(req.Value) == 0 {
		return domain.ErrMissingArgument.WithDetails("value is required")
	}
	return s.backend.Put(ctx, req.State, req.Key, req.Namespace, req.Value)
}

// GetStateRequest contains parameters for a state read.
type GetStateRequest struct {
	State     string // Required
	Key       []byte // Required
	Namespace []byte // Optional
}

// GetStateResponse contains the result of a state read.
type GetStateResponse struct {
	Value []byte
}

// Get reads the value for (state, key, namespace).
func (s *StateService) Get(ctx context.Context, req *GetStateRequest) (*GetStateResponse, error) {
	if req.State == "" {
		return nil, domain.ErrMissingArgument.WithDetails("state is required")
	}

	value, err := s.backend.Get(ctx, req.State, req.Key, req.Namespace)
	if err != nil {
		return nil, err
	}
	return &GetStateResponse{Value: value}, nil
}

// DeleteStateRequest contains parameters for a state delete.
type DeleteStateRequest struct {
	State     string // Required
	Key       []byte // Required
	Namespace []byte // Optional
}

// Delete removes the entry for (state, key, namespace). Deleting an
// absent entry succeeds.
func (s *StateService) Delete(ctx context.Context, req *DeleteStateRequest) error {
	if req.State == "" {
		return domain.ErrMissingArgument.WithDetails("state is required")
	}
	return s.backend.Delete(ctx, req.State, req.Key, req.Namespace)
}

// StatusResponse describes the backend for the status endpoint.
type StatusResponse struct {
	Range           keygroup.Range
	RegisteredCount int
	States          []domain.StateMetaInfo
}

// Status reports the owned range and registered states.
func (s *StateService) Status(_ context.Context) *StatusResponse {
	metas := s.backend.Registry().Snapshot()
	return &StatusResponse{
		Range:           s.backend.Range(),
		RegisteredCount: len(metas),
		States:          metas,
	}
}
