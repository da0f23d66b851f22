// Package service provides domain services for StreamMesh.
//
// StateService exposes keyed state access on top of the storage
// backend; CheckpointService drives snapshot triggering, listing and
// restore. Both validate requests and translate failures into domain
// errors before they reach a transport.
package service
