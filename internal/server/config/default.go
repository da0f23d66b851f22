// Package config defines the worker configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr = "127.0.0.1:5080"

	DefaultDataDir       = "/var/lib/streammesh-worker/data"
	DefaultEngine        = "memory"
	DefaultWALSyncMode   = "batch"
	DefaultWALSyncPeriod = 100 * time.Millisecond

	DefaultCheckpointWorkers = 1
	DefaultCheckpointQueue   = 16
	DefaultCheckpointScope   = "exclusive"

	DefaultMaxParallelism = 128

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default worker configuration: a single worker
// owning every key group of a 128-group job.
func Default() *WorkerConfig {
	return &WorkerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr: DefaultHTTPAddr,
			},
		},
		Storage: StorageSection{
			DataDir: DefaultDataDir,
			Engine:  DefaultEngine,
			WAL: WALConfig{
				SyncMode:     DefaultWALSyncMode,
				SyncInterval: DefaultWALSyncPeriod,
			},
		},
		Checkpoint: CheckpointSection{
			Workers:    DefaultCheckpointWorkers,
			QueueDepth: DefaultCheckpointQueue,
			Scope:      DefaultCheckpointScope,
		},
		KeyGroups: KeyGroupSection{
			RangeStart:     0,
			RangeEnd:       DefaultMaxParallelism - 1,
			MaxParallelism: DefaultMaxParallelism,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
