// Package logger provides structured logging for StreamMesh.
//
// It wraps log/slog with JSON output, runtime level adjustment and
// automatic redaction of secret-bearing fields:
//
//   - logger.go: configuration, level handling and the global logger
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive data redaction
//
// @req RQ-0403
// @design DS-0402
package logger
