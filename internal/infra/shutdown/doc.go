// Package shutdown provides graceful shutdown for StreamMesh.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Timeout-based forced shutdown
//   - Cleanup callback registration
//   - Shutdown coordination
//
// Usage:
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return server.Shutdown(ctx) })
//	err := h.Wait() // Blocks until SIGINT/SIGTERM, then runs hooks
//
// @design DS-0501
package shutdown
