// Package metric provides Prometheus metrics for StreamMesh.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, instruments and HTTP handler
//
// Metrics include:
//
//   - Snapshot lifecycle counters (started, completed, cancelled, failed)
//   - Snapshot phase duration histograms
//   - Bytes and entries written per checkpoint
//   - Store entry gauges and changelog size
//
// Metrics are exposed at /metrics in Prometheus format.
//
// @req RQ-0403
// @design DS-0402
package metric
