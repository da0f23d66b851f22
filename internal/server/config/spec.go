// Package config defines the worker configuration structure.
package config

import "time"

// WorkerConfig is the root configuration for streammesh-worker.
type WorkerConfig struct {
	Server     ServerSection     `koanf:"server"`
	Storage    StorageSection    `koanf:"storage"`
	Checkpoint CheckpointSection `koanf:"checkpoint"`
	KeyGroups  KeyGroupSection   `koanf:"key_groups"`
	Security   SecuritySection   `koanf:"security"`
	Log        LogSection        `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// TLSClientCAFile enables mutual TLS: client certificates are
	// required and verified against this CA bundle. Ignored unless the
	// server certificate is also configured.
	TLSClientCAFile string `koanf:"tls_client_ca_file"`

	// RateLimit is the sustained request rate per second; 0 disables
	// limiting. RateBurst is the burst allowance.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// StorageSection configures the state backend.
type StorageSection struct {
	// DataDir is the base directory for changelog segments, checkpoint
	// files and the on-disk store.
	DataDir string `koanf:"data_dir"`

	// Engine selects the store engine: "memory" or "badger".
	Engine string `koanf:"engine"`

	WAL    WALConfig    `koanf:"wal"`
	Badger BadgerTuning `koanf:"badger"`
}

// WALConfig configures the write-ahead changelog.
type WALConfig struct {
	// SyncMode is "sync" or "batch".
	SyncMode     string        `koanf:"sync_mode"`
	SyncInterval time.Duration `koanf:"sync_interval"`

	BatchCount int   `koanf:"batch_count"`
	BatchBytes int64 `koanf:"batch_bytes"`

	MaxFileSize   int64 `koanf:"max_file_size"`
	MaxEntryCount int   `koanf:"max_entry_count"`
}

// BadgerTuning configures the Badger engine; ignored for the memory
// engine.
type BadgerTuning struct {
	GCInterval time.Duration `koanf:"gc_interval"`
	CacheSize  int64         `koanf:"cache_size"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// CheckpointSection configures snapshot behavior.
type CheckpointSection struct {
	// Workers and QueueDepth size the asynchronous snapshot executor.
	Workers    int `koanf:"workers"`
	QueueDepth int `koanf:"queue_depth"`

	// Scope is the default stream scope: "exclusive" or "shared".
	Scope string `koanf:"scope"`
}

// KeyGroupSection configures key-group ownership.
type KeyGroupSection struct {
	// RangeStart and RangeEnd are the inclusive bounds of the owned
	// key-group range.
	RangeStart int `koanf:"range_start"`
	RangeEnd   int `koanf:"range_end"`

	// MaxParallelism is the total key-group count of the job. Keys hash
	// into [0, MaxParallelism); it must be identical across all workers
	// of a job.
	MaxParallelism int `koanf:"max_parallelism"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionKey is the hex-encoded 32-byte key for changelog
	// encryption at rest. Empty disables encryption.
	EncryptionKey string `koanf:"encryption_key"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
