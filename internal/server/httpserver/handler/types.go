package handler

import (
	"time"

	"github.com/yndnr/streammesh-go/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses
// Prometheus format).
//
// @design DS-0302 Section 2.1
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// RegisterStateRequest is the request body for POST /v1/states.
type RegisterStateRequest struct {
	Name                string `json:"name"`
	KeySerializer       string `json:"key_serializer"`
	NamespaceSerializer string `json:"namespace_serializer"`
	ValueSerializer     string `json:"value_serializer"`
}

// RegisterStateResponse is the response body for POST /v1/states.
type RegisterStateResponse struct {
	StateID int    `json:"state_id"`
	Name    string `json:"name"`
}

// StateStatusResponse is the response body for GET /v1/states.
type StateStatusResponse struct {
	RangeStart      int                    `json:"range_start"`
	RangeEnd        int                    `json:"range_end"`
	RegisteredCount int                    `json:"registered_count"`
	States          []domain.StateMetaInfo `json:"states"`
}

// EntryRequest is the request body for entry put/get/delete. Key,
// Namespace and Value are raw bytes, base64-encoded in JSON.
type EntryRequest struct {
	Key       []byte `json:"key"`
	Namespace []byte `json:"namespace,omitempty"`
	Value     []byte `json:"value,omitempty"`
}

// EntryResponse is the response body for entry reads.
type EntryResponse struct {
	Value []byte `json:"value"`
}

// TriggerCheckpointRequest is the request body for POST /v1/checkpoints.
type TriggerCheckpointRequest struct {
	CheckpointID uint64 `json:"checkpoint_id,omitempty"`
	Wait         bool   `json:"wait,omitempty"`
}

// TriggerCheckpointResponse is the response body for POST /v1/checkpoints.
type TriggerCheckpointResponse struct {
	CheckpointID uint64              `json:"checkpoint_id"`
	Outcome      string              `json:"outcome"`
	Empty        bool                `json:"empty,omitempty"`
	Handle       *domain.StateHandle `json:"handle,omitempty"`
	Metrics      *CheckpointMetrics  `json:"metrics,omitempty"`
}

// CheckpointMetrics mirrors domain.CheckpointMetrics with durations in
// milliseconds for JSON consumers.
type CheckpointMetrics struct {
	SyncMillis   int64 `json:"sync_ms"`
	AsyncMillis  int64 `json:"async_ms"`
	BytesWritten int64 `json:"bytes_written"`
	EntryCount   int64 `json:"entry_count"`
}

// RestoreCheckpointRequest is the request body for POST /v1/checkpoints/restore.
type RestoreCheckpointRequest struct {
	CheckpointID uint64 `json:"checkpoint_id,omitempty"`
}
