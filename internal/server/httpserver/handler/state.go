package handler

import (
	"net/http"

	"github.com/yndnr/streammesh-go/internal/core/service"
)

// handleRegisterState handles POST /v1/states.
//
// @design DS-0301
func (h *Handler) handleRegisterState(w http.ResponseWriter, r *http.Request) {
	var req RegisterStateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.stateSvc.Register(r.Context(), &service.RegisterStateRequest{
		Name:                req.Name,
		KeySerializer:       req.KeySerializer,
		NamespaceSerializer: req.NamespaceSerializer,
		ValueSerializer:     req.ValueSerializer,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, &RegisterStateResponse{
		StateID: resp.StateID,
		Name:    resp.Name,
	})
}

// handleStateStatus handles GET /v1/states.
func (h *Handler) handleStateStatus(w http.ResponseWriter, r *http.Request) {
	status := h.stateSvc.Status(r.Context())

	h.writeJSON(w, r, http.StatusOK, &StateStatusResponse{
		RangeStart:      status.Range.Start,
		RangeEnd:        status.Range.End,
		RegisteredCount: status.RegisteredCount,
		States:          status.States,
	})
}

// handlePutEntry handles POST /v1/states/{state}/entries.
func (h *Handler) handlePutEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	err := h.stateSvc.Put(r.Context(), &service.PutStateRequest{
		State:     r.PathValue("state"),
		Key:       req.Key,
		Namespace: req.Namespace,
		Value:     req.Value,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}

// handleGetEntry handles POST /v1/states/{state}/entries/get.
func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.stateSvc.Get(r.Context(), &service.GetStateRequest{
		State:     r.PathValue("state"),
		Key:       req.Key,
		Namespace: req.Namespace,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, &EntryResponse{Value: resp.Value})
}

// handleDeleteEntry handles POST /v1/states/{state}/entries/delete.
func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	err := h.stateSvc.Delete(r.Context(), &service.DeleteStateRequest{
		State:     r.PathValue("state"),
		Key:       req.Key,
		Namespace: req.Namespace,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}
