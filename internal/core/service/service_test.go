package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/internal/storage"
	"github.com/yndnr/streammesh-go/internal/storage/wal"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

func testServices(t *testing.T) (*StateService, *CheckpointService) {
	t.Helper()

	rng, err := keygroup.NewRange(0, 127)
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}

	cfg := storage.DefaultConfig(t.TempDir(), rng)
	cfg.WAL.SyncMode = wal.SyncModeSync
	cfg.WAL.BatchCount = 1

	backend, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	return NewStateService(backend, nil), NewCheckpointService(backend, nil)
}

func TestStateService_RegisterValidation(t *testing.T) {
	svc, _ := testServices(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *RegisterStateRequest
		ok   bool
	}{
		{"valid", &RegisterStateRequest{Name: "counts", KeySerializer: "string", NamespaceSerializer: "window", ValueSerializer: "long"}, true},
		{"missing name", &RegisterStateRequest{KeySerializer: "string", NamespaceSerializer: "window", ValueSerializer: "long"}, false},
		{"missing serializer", &RegisterStateRequest{Name: "x", KeySerializer: "string"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			if tt.ok && err != nil {
				t.Errorf("Register() error = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrMissingArgument) {
				t.Errorf("Register() error = %v, want ErrMissingArgument", err)
			}
		})
	}
}

func TestStateService_RegisterConflict(t *testing.T) {
	svc, _ := testServices(t)
	ctx := context.Background()

	req := &RegisterStateRequest{Name: "counts", KeySerializer: "string", NamespaceSerializer: "void", ValueSerializer: "long"}
	first, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Identical re-registration is idempotent.
	second, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if second.StateID != first.StateID {
		t.Errorf("re-register StateID = %d, want %d", second.StateID, first.StateID)
	}

	// Different serializers conflict.
	conflicting := *req
	conflicting.ValueSerializer = "double"
	if _, err := svc.Register(ctx, &conflicting); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("conflicting Register error = %v, want ErrStateConflict", err)
	}
}

func TestStateService_PutGetDelete(t *testing.T) {
	svc, _ := testServices(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, &RegisterStateRequest{
		Name: "counts", KeySerializer: "string", NamespaceSerializer: "void", ValueSerializer: "long",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Put(ctx, &PutStateRequest{State: "counts", Key: []byte("k"), Value: []byte("v")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp, err := svc.Get(ctx, &GetStateRequest{State: "counts", Key: []byte("k")})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(resp.Value, []byte("v")) {
		t.Errorf("Get = %q, want v", resp.Value)
	}

	if err := svc.Delete(ctx, &DeleteStateRequest{State: "counts", Key: []byte("k")}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, &GetStateRequest{State: "counts", Key: []byte("k")}); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("Get after delete = %v, want ErrEntryNotFound", err)
	}

	// Validation failures never reach the backend.
	if err := svc.Put(ctx, &PutStateRequest{Key: []byte("k"), Value: []byte("v")}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Put without state = %v, want ErrMissingArgument", err)
	}
	if err := svc.Put(ctx, &PutStateRequest{State: "counts", Key: []byte("k")}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Put without value = %v, want ErrMissingArgument", err)
	}
}

func TestStateService_Status(t *testing.T) {
	svc, _ := testServices(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, &RegisterStateRequest{
		Name: "a", KeySerializer: "string", NamespaceSerializer: "void", ValueSerializer: "long",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	status := svc.Status(ctx)
	if status.RegisteredCount != 1 || len(status.States) != 1 {
		t.Errorf("Status = %+v, want one registered state", status)
	}
	if status.Range.Start != 0 || status.Range.End != 127 {
		t.Errorf("Status.Range = %v, want [0, 127]", status.Range)
	}
}

func TestCheckpointService_TriggerAndList(t *testing.T) {
	stateSvc, cpSvc := testServices(t)
	ctx := context.Background()

	if _, err := stateSvc.Register(ctx, &RegisterStateRequest{
		Name: "counts", KeySerializer: "string", NamespaceSerializer: "void", ValueSerializer: "long",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := stateSvc.Put(ctx, &PutStateRequest{State: "counts", Key: []byte("k"), Value: []byte("v")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	resp, err := cpSvc.Trigger(ctx, &TriggerCheckpointRequest{Wait: true})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if resp.CheckpointID != 1 {
		t.Errorf("CheckpointID = %d, want assigned id 1", resp.CheckpointID)
	}
	if resp.Result == nil || resp.Result.Handle == nil {
		t.Fatalf("Result = %+v, want a durable handle", resp.Result)
	}
	if resp.Metrics.EntryCount != 1 {
		t.Errorf("Metrics.EntryCount = %d, want 1", resp.Metrics.EntryCount)
	}

	// Explicit ids advance the internal counter.
	resp2, err := cpSvc.Trigger(ctx, &TriggerCheckpointRequest{CheckpointID: 9, Wait: true})
	if err != nil {
		t.Fatalf("Trigger with id: %v", err)
	}
	if resp2.CheckpointID != 9 {
		t.Errorf("CheckpointID = %d, want 9", resp2.CheckpointID)
	}
	resp3, err := cpSvc.Trigger(ctx, &TriggerCheckpointRequest{Wait: true})
	if err != nil {
		t.Fatalf("Trigger after explicit id: %v", err)
	}
	if resp3.CheckpointID != 10 {
		t.Errorf("CheckpointID = %d, want 10", resp3.CheckpointID)
	}
}

func TestCheckpointService_LatestEmpty(t *testing.T) {
	_, cpSvc := testServices(t)

	if _, err := cpSvc.Latest(context.Background()); !errors.Is(err, domain.ErrCheckpointNotFound) {
		t.Errorf("Latest on empty backend = %v, want ErrCheckpointNotFound", err)
	}
}

func TestCheckpointService_Restore(t *testing.T) {
	stateSvc, cpSvc := testServices(t)
	ctx := context.Background()

	if _, err := stateSvc.Register(ctx, &RegisterStateRequest{
		Name: "counts", KeySerializer: "string", NamespaceSerializer: "void", ValueSerializer: "long",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := stateSvc.Put(ctx, &PutStateRequest{State: "counts", Key: []byte("k"), Value: []byte("v1")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := cpSvc.Trigger(ctx, &TriggerCheckpointRequest{CheckpointID: 1, Wait: true}); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitForListing(t, cpSvc, 1)

	// Mutate past the checkpoint, then rewind.
	if err := stateSvc.Put(ctx, &PutStateRequest{State: "counts", Key: []byte("k"), Value: []byte("v2")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := cpSvc.Restore(ctx, &RestoreRequest{}); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	resp, err := stateSvc.Get(ctx, &GetStateRequest{State: "counts", Key: []byte("k")})
	if err != nil {
		t.Fatalf("Get after restore: %v", err)
	}
	if !bytes.Equal(resp.Value, []byte("v1")) {
		t.Errorf("Get after restore = %q, want checkpointed v1", resp.Value)
	}

	if _, err := cpSvc.Restore(ctx, &RestoreRequest{CheckpointID: 404}); !errors.Is(err, domain.ErrCheckpointNotFound) {
		t.Errorf("Restore missing id = %v, want ErrCheckpointNotFound", err)
	}
}

func waitForListing(t *testing.T, svc *CheckpointService, id uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		list, err := svc.List(context.Background())
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, md := range list {
			if uint64(md.CheckpointID) == id {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("checkpoint %d never listed", id)
}
