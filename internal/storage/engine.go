package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/streammesh-go/internal/checkpoint/codec"
	"github.com/yndnr/streammesh-go/internal/checkpoint/snapshot"
	"github.com/yndnr/streammesh-go/internal/checkpoint/stream"
	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/internal/storage/memory"
	"github.com/yndnr/streammesh-go/internal/storage/wal"
	"github.com/yndnr/streammesh-go/internal/telemetry/metric"
	"github.com/yndnr/streammesh-go/pkg/crypto/adaptive"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// Store engine names.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Directory layout under DataDir.
const (
	changelogDirName   = "changelog"
	checkpointsDirName = "checkpoints"
	stateDirName       = "state"

	metadataFileName = "metadata.json"
)

// Config configures the state backend.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// Engine selects the store engine, EngineMemory or EngineBadger.
	Engine string

	// Range is the key-group range this backend owns.
	Range keygroup.Range

	// MaxParallelism is the total key-group count of the job; keys hash
	// into [0, MaxParallelism).
	MaxParallelism int

	// WAL configures the write-ahead changelog.
	WAL wal.Config

	// Badger tunes the Badger engine; ignored for the memory engine.
	Badger BadgerConfig

	// Workers and QueueDepth size the snapshot executor.
	Workers    int
	QueueDepth int

	// Scope is the default stream scope for snapshots.
	Scope stream.Scope

	// Cipher, when set, encrypts changelog records at rest.
	Cipher adaptive.Cipher

	Logger    *slog.Logger
	Metrics   *metric.Registry
	Responder snapshot.Responder
}

// DefaultConfig returns the default backend configuration for a range.
func DefaultConfig(dataDir string, rng keygroup.Range) Config {
	return Config{
		DataDir:        dataDir,
		Engine:         EngineMemory,
		Range:          rng,
		MaxParallelism: rng.End + 1,
		WAL:            wal.DefaultConfig(filepath.Join(dataDir, changelogDirName)),
		Badger:         DefaultBadgerConfig(),
	}
}

// CheckpointMetadata describes one completed checkpoint, persisted as
// metadata.json in the checkpoint directory.
type CheckpointMetadata struct {
	CheckpointID domain.CheckpointID `json:"checkpoint_id"`
	Timestamp    int64               `json:"timestamp"`
	Empty        bool                `json:"empty,omitempty"`
	Handle       *domain.StateHandle `json:"handle,omitempty"`
	WALOffset    uint64              `json:"wal_offset"`
	EntryCount   int64               `json:"entry_count"`
	BytesWritten int64               `json:"bytes_written"`
}

// Backend is the keyed state backend: a store engine, the write-ahead
// changelog, the state registry and the snapshot coordinator.
//
// Mutations append to the changelog before they apply to the store, so
// any acknowledged mutation survives a crash between two checkpoints.
type Backend struct {
	cfg Config

	store    Store
	registry *domain.StateRegistry
	wal      *wal.Writer
	compact  *wal.Compactor
	coord    *snapshot.Coordinator

	logger  *slog.Logger
	metrics *metric.Registry

	mu             sync.Mutex
	pendingOffsets map[domain.CheckpointID]uint64
	lastCompleted  *CheckpointMetadata
}

// New creates a state backend. Call Recover afterwards to load
// persisted state.
func New(cfg Config) (*Backend, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = cfg.Range.End + 1
	}
	if cfg.WAL.Dir == "" {
		cfg.WAL.Dir = filepath.Join(cfg.DataDir, changelogDirName)
	}
	cfg.WAL.Cipher = cfg.Cipher

	var store Store
	switch cfg.Engine {
	case "", EngineMemory:
		store = &memStore{inner: memory.New(cfg.Range)}
	case EngineBadger:
		bs, err := NewBadgerStore(filepath.Join(cfg.DataDir, stateDirName), cfg.Range, cfg.Badger, cfg.Logger)
		if err != nil {
			return nil, err
		}
		store = bs
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", cfg.Engine)
	}

	walWriter, err := wal.NewWriter(cfg.WAL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("storage: create changelog writer: %w", err)
	}

	b := &Backend{
		cfg:            cfg,
		store:          store,
		registry:       domain.NewStateRegistry(),
		wal:            walWriter,
		compact:        wal.NewCompactor(cfg.WAL.Dir),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		pendingOffsets: make(map[domain.CheckpointID]uint64),
	}

	b.coord = snapshot.NewCoordinator(b.captureView, b.registry, snapshot.Config{
		Range:      cfg.Range,
		Scope:      cfg.Scope,
		Workers:    cfg.Workers,
		QueueDepth: cfg.QueueDepth,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
		Responder:  &backendResponder{backend: b, next: cfg.Responder},
	})

	return b, nil
}

func (b *Backend) captureView() (snapshot.ReadView, error) {
	v, err := b.store.View()
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Range returns the owned key-group range.
func (b *Backend) Range() keygroup.Range {
	return b.cfg.Range
}

// Registry exposes the state registry.
func (b *Backend) Registry() *domain.StateRegistry {
	return b.registry
}

// RegisterState registers a named state with its serializer
// descriptors. Registration is idempotent for identical descriptors.
func (b *Backend) RegisterState(name, keySer, nsSer, valSer string) (*domain.StateMetaInfo, error) {
	return b.registry.Register(name, keySer, nsSer, valSer)
}

// validateKey enforces the codec key contract at the write boundary,
// so every stored key can later be framed without escaping.
func validateKey(key []byte) error {
	if len(key) < codec.MinKeyLength || len(key) > codec.MaxKeyLength {
		return domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("key length %d outside [%d, %d]", len(key), codec.MinKeyLength, codec.MaxKeyLength))
	}
	if codec.HasMetaFollowsFlag(key) {
		return domain.ErrInvalidArgument.WithDetails("key first byte reserves the metadata flag bit")
	}
	return nil
}

func (b *Backend) resolve(stateName string, key []byte) (*domain.StateMetaInfo, int, error) {
	meta, err := b.registry.Lookup(stateName)
	if err != nil {
		return nil, 0, err
	}
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	group := keygroup.Assign(key, b.cfg.MaxParallelism)
	if !b.cfg.Range.Contains(group) {
		return nil, 0, domain.ErrKeyGroupOutOfRange.WithDetails(b.cfg.Range.String())
	}
	return meta, group, nil
}

// Put writes a value for (state, key, namespace). The mutation is
// appended to the changelog before it is applied.
func (b *Backend) Put(ctx context.Context, stateName string, key, namespace, value []byte) error {
	meta, group, err := b.resolve(stateName, key)
	if err != nil {
		return err
	}

	entry := &domain.StateEntry{
		StateID:   meta.ID,
		KeyGroup:  group,
		Key:       key,
		Namespace: namespace,
		Value:     value,
	}
	if err := b.wal.Append(wal.NewPutEntry(entry)); err != nil {
		return fmt.Errorf("storage: changelog append: %w", err)
	}
	if err := b.store.Put(ctx, entry); err != nil {
		return err
	}
	b.updateStoreGauge()
	return nil
}

// Get reads the value for (state, key, namespace).
func (b *Backend) Get(ctx context.Context, stateName string, key, namespace []byte) ([]byte, error) {
	meta, group, err := b.resolve(stateName, key)
	if err != nil {
		return nil, err
	}
	return b.store.Get(ctx, meta.ID, group, key, namespace)
}

// Delete removes the entry for (state, key, namespace).
func (b *Backend) Delete(ctx context.Context, stateName string, key, namespace []byte) error {
	meta, group, err := b.resolve(stateName, key)
	if err != nil {
		return err
	}

	if err := b.wal.Append(wal.NewDeleteEntry(meta.ID, group, key, namespace)); err != nil {
		return fmt.Errorf("storage: changelog append: %w", err)
	}
	if err := b.store.Delete(ctx, meta.ID, group, key, namespace); err != nil {
		return err
	}
	b.updateStoreGauge()
	return nil
}

func (b *Backend) updateStoreGauge() {
	if b.metrics == nil {
		return
	}
	if n, err := b.store.Count(); err == nil {
		b.metrics.StoreEntries.Set(float64(n))
	}
}

// TriggerCheckpoint starts a snapshot for the given checkpoint id. The
// synchronous phase runs on this goroutine; the returned pending
// handle resolves when the asynchronous phase finishes.
func (b *Backend) TriggerCheckpoint(_ context.Context, id domain.CheckpointID) (*snapshot.PendingSnapshot, error) {
	if err := b.wal.Flush(); err != nil {
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}

	// The offset is taken before capture; records between here and the
	// capture replay idempotently on recovery.
	b.mu.Lock()
	b.pendingOffsets[id] = b.wal.CurrentOffset()
	b.mu.Unlock()

	factory, err := stream.NewFileFactory(filepath.Join(b.cfg.DataDir, checkpointsDirName), id)
	if err != nil {
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}

	pending, err := b.coord.Snapshot(domain.NewCheckpoint(id), factory)
	if err != nil {
		b.mu.Lock()
		delete(b.pendingOffsets, id)
		b.mu.Unlock()
		return nil, err
	}
	return pending, nil
}

// LastCheckpoint returns metadata for the most recent completed
// checkpoint, or nil.
func (b *Backend) LastCheckpoint() *CheckpointMetadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCompleted
}

// Checkpoints lists completed checkpoints found on disk, oldest first.
func (b *Backend) Checkpoints() ([]*CheckpointMetadata, error) {
	dir := filepath.Join(b.cfg.DataDir, checkpointsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*CheckpointMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		md, err := readMetadata(filepath.Join(dir, e.Name(), metadataFileName))
		if err != nil {
			continue
		}
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckpointID < out[j].CheckpointID })
	return out, nil
}

// Restore loads a completed checkpoint into the store and registry,
// replacing current contents.
func (b *Backend) Restore(_ context.Context, md *CheckpointMetadata) error {
	if md.Empty || md.Handle == nil {
		if err := b.registry.Restore(nil); err != nil {
			return err
		}
		return b.store.Load(nil)
	}

	rc, _, err := stream.OpenHandle(md.Handle.Location)
	if err != nil {
		return domain.ErrCheckpointNotFound.WithCause(err)
	}
	defer rc.Close()

	groups, metas, err := codec.ReadAll(rc, b.cfg.Range)
	if err != nil {
		return domain.ErrSerializationFailure.WithCause(err)
	}
	if err := b.registry.Restore(metas); err != nil {
		return err
	}

	var entries []*domain.StateEntry
	for group := b.cfg.Range.Start; group <= b.cfg.Range.End; group++ {
		entries = append(entries, groups[group]...)
	}
	if err := b.store.Load(entries); err != nil {
		return err
	}
	b.updateStoreGauge()

	b.logger.Info("checkpoint restored",
		"checkpoint_id", uint64(md.CheckpointID),
		"entries", len(entries),
		"states", len(metas))
	return nil
}

// Recover restores the newest loadable checkpoint and replays the
// changelog tail. Corrupt checkpoints are skipped, falling back to the
// previous one.
func (b *Backend) Recover(ctx context.Context) error {
	start := time.Now()

	checkpoints, err := b.Checkpoints()
	if err != nil {
		return err
	}

	replayFrom := uint64(0)
	for i := len(checkpoints) - 1; i >= 0; i-- {
		md := checkpoints[i]
		if err := b.Restore(ctx, md); err != nil {
			b.logger.Warn("checkpoint unloadable, falling back",
				"checkpoint_id", uint64(md.CheckpointID), "error", err)
			continue
		}
		replayFrom = md.WALOffset
		b.mu.Lock()
		b.lastCompleted = md
		b.mu.Unlock()
		break
	}

	replayed, err := b.replayChangelog(ctx, replayFrom)
	if err != nil {
		return err
	}

	b.logger.Info("recovery complete",
		"replayed_records", replayed,
		"elapsed", time.Since(start))
	return nil
}

func (b *Backend) replayChangelog(ctx context.Context, offset uint64) (int, error) {
	reader, err := wal.NewReader(b.cfg.WAL.Dir, b.cfg.Cipher)
	if err != nil {
		return 0, fmt.Errorf("storage: open changelog: %w", err)
	}
	defer reader.Close()

	if offset > 0 {
		if err := reader.Seek(offset); err != nil {
			return 0, fmt.Errorf("storage: seek changelog: %w", err)
		}
	}

	replayed := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return replayed, fmt.Errorf("storage: replay changelog: %w", err)
		}

		switch rec.OpType {
		case wal.OpTypePut:
			err = b.store.Put(ctx, rec.StateEntry())
		case wal.OpTypeDelete:
			err = b.store.Delete(ctx, rec.StateID, rec.KeyGroup, rec.Key, rec.Namespace)
		}
		if err != nil {
			// Records for groups this instance no longer owns are
			// skipped after a range change.
			if errors.Is(err, domain.ErrKeyGroupOutOfRange) {
				continue
			}
			return replayed, err
		}
		replayed++
	}
	b.updateStoreGauge()
	return replayed, nil
}

// Close shuts the backend down: the coordinator first so an in-flight
// snapshot cancels, then the changelog and the store.
func (b *Backend) Close() error {
	b.coord.Close()

	var errs []error
	if err := b.wal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// onCheckpointComplete runs when a snapshot acknowledges: it persists
// checkpoint metadata and drops changelog segments the checkpoint made
// obsolete.
func (b *Backend) onCheckpointComplete(id domain.CheckpointID, result *domain.SnapshotResult, metrics domain.CheckpointMetrics) {
	b.mu.Lock()
	offset := b.pendingOffsets[id]
	delete(b.pendingOffsets, id)
	b.mu.Unlock()

	md := &CheckpointMetadata{
		CheckpointID: id,
		Timestamp:    time.Now().UnixMilli(),
		Empty:        result.Empty,
		Handle:       result.Handle,
		WALOffset:    offset,
		EntryCount:   metrics.EntryCount,
		BytesWritten: metrics.BytesWritten,
	}
	if err := b.writeMetadata(md); err != nil {
		b.logger.Error("write checkpoint metadata", "checkpoint_id", uint64(id), "error", err)
		return
	}

	b.mu.Lock()
	b.lastCompleted = md
	b.mu.Unlock()

	if err := b.compact.Compact(offset); err != nil {
		b.logger.Warn("changelog compaction", "error", err)
	}
	if b.metrics != nil {
		if size, err := b.compact.TotalSize(); err == nil {
			b.metrics.ChangelogSize.Set(float64(size))
		}
	}
}

func (b *Backend) writeMetadata(md *CheckpointMetadata) error {
	dir := filepath.Join(b.cfg.DataDir, checkpointsDirName, fmt.Sprintf("chk-%d", md.CheckpointID))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, metadataFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMetadata(path string) (*CheckpointMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var md CheckpointMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// backendResponder persists checkpoint bookkeeping before forwarding
// to the configured responder.
type backendResponder struct {
	backend *Backend
	next    snapshot.Responder
}

func (r *backendResponder) AcknowledgeCheckpoint(id domain.CheckpointID, result *domain.SnapshotResult, metrics domain.CheckpointMetrics) {
	r.backend.onCheckpointComplete(id, result, metrics)
	if r.next != nil {
		r.next.AcknowledgeCheckpoint(id, result, metrics)
	}
}

func (r *backendResponder) DeclineCheckpoint(id domain.CheckpointID, cause error) {
	r.backend.mu.Lock()
	delete(r.backend.pendingOffsets, id)
	r.backend.mu.Unlock()

	if r.next != nil {
		r.next.DeclineCheckpoint(id, cause)
	}
}

// memStore adapts the memory engine to the Store interface; its View
// returns a concrete type.
type memStore struct {
	inner *memory.Store
}

func (m *memStore) Put(ctx context.Context, entry *domain.StateEntry) error {
	return m.inner.Put(ctx, entry)
}

func (m *memStore) Get(ctx context.Context, stateID int, keyGroup int, key, namespace []byte) ([]byte, error) {
	return m.inner.Get(ctx, stateID, keyGroup, key, namespace)
}

func (m *memStore) Delete(ctx context.Context, stateID int, keyGroup int, key, namespace []byte) error {
	return m.inner.Delete(ctx, stateID, keyGroup, key, namespace)
}

func (m *memStore) View() (ReadView, error) {
	v, err := m.inner.View()
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (m *memStore) Load(entries []*domain.StateEntry) error {
	return m.inner.Load(entries)
}

func (m *memStore) Count() (int64, error) {
	return m.inner.Count()
}

func (m *memStore) Close() error {
	return m.inner.Close()
}
