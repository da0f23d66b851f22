// Package handler provides HTTP request handlers for StreamMesh.
//
// This package implements the HTTP API endpoints for keyed state
// access, checkpoint management and health probes.
//
// @req RQ-0301
// @design DS-0301
package handler
