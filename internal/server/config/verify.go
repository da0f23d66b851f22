// Package config defines the worker configuration structure.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *WorkerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyKeyGroups(&cfg.KeyGroups); err != nil {
		return err
	}
	if err := verifyCheckpoint(&cfg.Checkpoint); err != nil {
		return err
	}
	return verifySecurity(&cfg.Security)
}

func verifyServer(cfg *ServerSection) error {
	http := &cfg.HTTP
	if http.RateLimit < 0 || http.RateBurst < 0 {
		return errors.New("server.http rate_limit and rate_burst must be non-negative")
	}
	if (http.TLSCertFile == "") != (http.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	if http.TLSClientCAFile != "" && http.TLSCertFile == "" {
		return errors.New("server.http.tls_client_ca_file requires a server certificate")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}

	switch cfg.Engine {
	case "", "memory", "badger":
	default:
		return fmt.Errorf("storage.engine %q is not one of memory, badger", cfg.Engine)
	}

	switch cfg.WAL.SyncMode {
	case "", "sync", "batch":
	default:
		return fmt.Errorf("storage.wal.sync_mode %q is not one of sync, batch", cfg.WAL.SyncMode)
	}
	return nil
}

func verifyKeyGroups(cfg *KeyGroupSection) error {
	if cfg.MaxParallelism < 1 || cfg.MaxParallelism > 0xFFFE {
		return fmt.Errorf("key_groups.max_parallelism %d outside [1, 65534]", cfg.MaxParallelism)
	}
	if cfg.RangeStart < 0 || cfg.RangeEnd < cfg.RangeStart {
		return fmt.Errorf("key_groups range [%d, %d] is invalid", cfg.RangeStart, cfg.RangeEnd)
	}
	if cfg.RangeEnd >= cfg.MaxParallelism {
		return fmt.Errorf("key_groups.range_end %d exceeds max_parallelism %d",
			cfg.RangeEnd, cfg.MaxParallelism)
	}
	return nil
}

func verifyCheckpoint(cfg *CheckpointSection) error {
	if cfg.Workers < 0 || cfg.QueueDepth < 0 {
		return errors.New("checkpoint.workers and checkpoint.queue_depth must be non-negative")
	}
	switch cfg.Scope {
	case "", "exclusive", "shared":
	default:
		return fmt.Errorf("checkpoint.scope %q is not one of exclusive, shared", cfg.Scope)
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.EncryptionKey == "" {
		return nil
	}
	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return errors.New("security.encryption_key must be hex-encoded")
	}
	if len(key) != 32 {
		return fmt.Errorf("security.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return nil
}
