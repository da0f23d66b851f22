package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/streammesh-go/internal/core/service"
	"github.com/yndnr/streammesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/streammesh-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// StateService handles keyed state operations.
	StateService *service.StateService

	// CheckpointService handles checkpoint operations.
	CheckpointService *service.CheckpointService

	// Logger for request logging.
	Logger *slog.Logger

	// Metrics backs the /metrics endpoint and request instrumentation.
	Metrics *metric.Registry

	// RateLimit is the per-IP request rate (requests/second, 0 = off).
	RateLimit float64

	// RateBurst is the per-IP burst size when rate limiting is on.
	RateBurst int
}

// NewRouter creates and configures the HTTP router with all routes and
// middleware.
//
// @design DS-0301, DS-0302
func NewRouter(cfg *RouterConfig) http.Handler {
	h := handler.New(cfg.StateService, cfg.CheckpointService, cfg.Logger)

	// Order: Recover -> RequestID -> RateLimit -> RequestLog -> Handler.
	middlewares := []Middleware{
		Recover(cfg.Logger),
		RequestID(),
	}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	middlewares = append(middlewares, RequestLog(cfg.Logger, cfg.Metrics))

	mux := http.NewServeMux()

	// Health endpoints get the light chain: no rate limiting so probes
	// never starve under load.
	probeChain := []Middleware{Recover(cfg.Logger), RequestID()}
	mux.Handle("GET /health", Chain(h, probeChain...))
	mux.Handle("GET /ready", Chain(h, probeChain...))

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), probeChain...))
	}

	apiHandler := Chain(h, middlewares...)

	// State endpoints
	mux.Handle("POST /v1/states", apiHandler)
	mux.Handle("GET /v1/states", apiHandler)
	mux.Handle("POST /v1/states/{state}/entries", apiHandler)
	mux.Handle("POST /v1/states/{state}/entries/get", apiHandler)
	mux.Handle("POST /v1/states/{state}/entries/delete", apiHandler)

	// Checkpoint endpoints
	mux.Handle("POST /v1/checkpoints", apiHandler)
	mux.Handle("GET /v1/checkpoints", apiHandler)
	mux.Handle("GET /v1/checkpoints/latest", apiHandler)
	mux.Handle("POST /v1/checkpoints/restore", apiHandler)

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit: 1000,
		RateBurst: 1000,
	}
}
