package handler

import (
	"net/http"

	"github.com/yndnr/streammesh-go/internal/core/service"
)

// handleTriggerCheckpoint handles POST /v1/checkpoints.
//
// @design DS-0301
func (h *Handler) handleTriggerCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req TriggerCheckpointRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.cpSvc.Trigger(r.Context(), &service.TriggerCheckpointRequest{
		CheckpointID: req.CheckpointID,
		Wait:         req.Wait,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	out := &TriggerCheckpointResponse{
		CheckpointID: resp.CheckpointID,
		Outcome:      resp.Outcome,
	}
	if resp.Result != nil {
		out.Empty = resp.Result.Empty
		out.Handle = resp.Result.Handle
		out.Metrics = &CheckpointMetrics{
			SyncMillis:   resp.Metrics.SyncDuration.Milliseconds(),
			AsyncMillis:  resp.Metrics.AsyncDuration.Milliseconds(),
			BytesWritten: resp.Metrics.BytesWritten,
			EntryCount:   resp.Metrics.EntryCount,
		}
	}

	status := http.StatusAccepted
	if req.Wait {
		status = http.StatusOK
	}
	h.writeJSON(w, r, status, out)
}

// handleListCheckpoints handles GET /v1/checkpoints.
func (h *Handler) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	list, err := h.cpSvc.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, list)
}

// handleLatestCheckpoint handles GET /v1/checkpoints/latest.
func (h *Handler) handleLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	md, err := h.cpSvc.Latest(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, md)
}

// handleRestoreCheckpoint handles POST /v1/checkpoints/restore.
func (h *Handler) handleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req RestoreCheckpointRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	md, err := h.cpSvc.Restore(r.Context(), &service.RestoreRequest{
		CheckpointID: req.CheckpointID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, md)
}
