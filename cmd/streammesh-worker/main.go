// @design DS-0501
package main

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/streammesh-go/internal/checkpoint/stream"
	"github.com/yndnr/streammesh-go/internal/core/service"
	"github.com/yndnr/streammesh-go/internal/infra/buildinfo"
	"github.com/yndnr/streammesh-go/internal/infra/confloader"
	"github.com/yndnr/streammesh-go/internal/infra/shutdown"
	"github.com/yndnr/streammesh-go/internal/infra/tlsroots"
	"github.com/yndnr/streammesh-go/internal/server/config"
	"github.com/yndnr/streammesh-go/internal/server/httpserver"
	"github.com/yndnr/streammesh-go/internal/storage"
	"github.com/yndnr/streammesh-go/internal/storage/wal"
	"github.com/yndnr/streammesh-go/internal/telemetry/logger"
	"github.com/yndnr/streammesh-go/internal/telemetry/metric"
	"github.com/yndnr/streammesh-go/pkg/crypto/adaptive"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("streammesh-worker %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting streammesh-worker",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)

	metrics := metric.NewRegistry()

	backend, err := initStorage(cfg, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Recover state from the newest checkpoint plus the changelog tail.
	ctx := context.Background()
	if err := backend.Recover(ctx); err != nil {
		return fmt.Errorf("storage recovery: %w", err)
	}

	stateSvc := service.NewStateService(backend, slogLogger)
	checkpointSvc := service.NewCheckpointService(backend, slogLogger)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		StateService:      stateSvc,
		CheckpointService: checkpointSvc,
		Logger:            slogLogger,
		Metrics:           metrics,
		RateLimit:         cfg.Server.HTTP.RateLimit,
		RateBurst:         cfg.Server.HTTP.RateBurst,
	})
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router)

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	useTLS := cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != ""
	if useTLS {
		tlsCfg, certWatcher, err := serverTLS(&cfg.Server.HTTP, slogLogger)
		if err != nil {
			return fmt.Errorf("init TLS: %w", err)
		}
		httpServer.SetTLSConfig(tlsCfg)
		certWatcher.StartAsync()
		shutdownHandler.OnShutdown(func(context.Context) error {
			certWatcher.Stop()
			return nil
		})
	}

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down storage backend")
		return backend.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", useTLS)

		var err error
		if useTLS {
			// Certificates come from the watcher via GetCertificate.
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("worker started",
		"key_groups", fmt.Sprintf("[%d, %d]", cfg.KeyGroups.RangeStart, cfg.KeyGroups.RangeEnd),
		"engine", cfg.Storage.Engine)
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("worker stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.WorkerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger and installs it as the
// process default.
func initLogger(cfg *config.WorkerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.SetDefault(log)
	return log, slog.Default(), nil
}

// serverTLS builds the server TLS configuration. The certificate is
// served through a file watcher so rotated certs take effect without a
// restart; a client CA file additionally enables mutual TLS.
func serverTLS(cfg *config.HTTPConfig, log *slog.Logger) (*tls.Config, *tlsroots.Watcher, error) {
	watcher, err := tlsroots.NewWatcher(cfg.TLSCertFile, cfg.TLSKeyFile, tlsroots.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	tlsCfg := &tls.Config{
		GetCertificate: watcher.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	if cfg.TLSClientCAFile != "" {
		pool := tlsroots.NewEmptyPool()
		if err := pool.AddCertFile(cfg.TLSClientCAFile); err != nil {
			return nil, nil, err
		}
		tlsCfg.ClientCAs = pool.Pool()
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsCfg, watcher, nil
}

// initStorage builds the state backend from the worker configuration.
func initStorage(cfg *config.WorkerConfig, log *slog.Logger, metrics *metric.Registry) (*storage.Backend, error) {
	rng, err := keygroup.NewRange(cfg.KeyGroups.RangeStart, cfg.KeyGroups.RangeEnd)
	if err != nil {
		return nil, err
	}

	storageCfg := storage.DefaultConfig(cfg.Storage.DataDir, rng)
	storageCfg.Engine = cfg.Storage.Engine
	storageCfg.MaxParallelism = cfg.KeyGroups.MaxParallelism
	storageCfg.Workers = cfg.Checkpoint.Workers
	storageCfg.QueueDepth = cfg.Checkpoint.QueueDepth
	storageCfg.Scope = stream.Scope(cfg.Checkpoint.Scope)
	storageCfg.Logger = log
	storageCfg.Metrics = metrics

	if cfg.Storage.WAL.SyncMode != "" {
		storageCfg.WAL.SyncMode = wal.SyncMode(cfg.Storage.WAL.SyncMode)
	}
	if cfg.Storage.WAL.SyncInterval > 0 {
		storageCfg.WAL.SyncInterval = cfg.Storage.WAL.SyncInterval
	}
	if cfg.Storage.WAL.BatchCount > 0 {
		storageCfg.WAL.BatchCount = cfg.Storage.WAL.BatchCount
	}
	if cfg.Storage.WAL.BatchBytes > 0 {
		storageCfg.WAL.BatchBytes = cfg.Storage.WAL.BatchBytes
	}
	if cfg.Storage.WAL.MaxFileSize > 0 {
		storageCfg.WAL.MaxFileSize = cfg.Storage.WAL.MaxFileSize
	}
	if cfg.Storage.WAL.MaxEntryCount > 0 {
		storageCfg.WAL.MaxEntryCount = cfg.Storage.WAL.MaxEntryCount
	}

	if cfg.Storage.Badger.GCInterval > 0 {
		storageCfg.Badger.GCInterval = cfg.Storage.Badger.GCInterval
	}
	if cfg.Storage.Badger.CacheSize > 0 {
		storageCfg.Badger.CacheSize = cfg.Storage.Badger.CacheSize
	}
	storageCfg.Badger.SyncWrites = cfg.Storage.Badger.SyncWrites

	if cfg.Security.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		cipher, err := adaptive.New(key)
		if err != nil {
			return nil, fmt.Errorf("init cipher: %w", err)
		}
		storageCfg.Cipher = cipher
	}

	return storage.New(storageCfg)
}
