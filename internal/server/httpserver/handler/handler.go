package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/internal/core/service"
)

// Handler is the main HTTP handler that routes requests to appropriate
// handlers.
//
// @design DS-0301
type Handler struct {
	stateSvc *service.StateService
	cpSvc    *service.CheckpointService
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a new Handler with the given services.
func New(stateSvc *service.StateService, cpSvc *service.CheckpointService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		stateSvc: stateSvc,
		cpSvc:    cpSvc,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// State endpoints
	h.mux.HandleFunc("POST /v1/states", h.handleRegisterState)
	h.mux.HandleFunc("GET /v1/states", h.handleStateStatus)
	h.mux.HandleFunc("POST /v1/states/{state}/entries", h.handlePutEntry)
	h.mux.HandleFunc("POST /v1/states/{state}/entries/get", h.handleGetEntry)
	h.mux.HandleFunc("POST /v1/states/{state}/entries/delete", h.handleDeleteEntry)

	// Checkpoint endpoints
	h.mux.HandleFunc("POST /v1/checkpoints", h.handleTriggerCheckpoint)
	h.mux.HandleFunc("GET /v1/checkpoints", h.handleListCheckpoints)
	h.mux.HandleFunc("GET /v1/checkpoints/latest", h.handleLatestCheckpoint)
	h.mux.HandleFunc("POST /v1/checkpoints/restore", h.handleRestoreCheckpoint)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID extracts the request ID set by the RequestID middleware.
func getRequestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

// decodeBody decodes a JSON request body into dst, rejecting unknown
// fields so typos surface as 400s instead of silent no-ops. An empty
// body leaves dst at its zero value.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		h.writeError(w, r, http.StatusBadRequest, "SM-ARG-1001", "invalid request body", err.Error())
		return false
	}
	return true
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if code := domain.GetErrorCode(err); code != "" {
		status := errorCodeToHTTPStatus(code)
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	h.logger.Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "SM-SYS-5000", "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"), strings.HasSuffix(code, "-4991"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4002"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "SM-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
