// Package domain defines the core domain models for StreamMesh.
//
// It contains the checkpoint and keyed-state types shared by the
// storage, checkpoint and server layers, plus the coded domain errors.
//
// @req RQ-0101
// @design DS-0101
package domain
