package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/streammesh-go/internal/core/service"
	"github.com/yndnr/streammesh-go/internal/storage"
	"github.com/yndnr/streammesh-go/internal/storage/wal"
	"github.com/yndnr/streammesh-go/internal/telemetry/metric"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

func testRouter(t *testing.T) (http.Handler, *metric.Registry) {
	t.Helper()

	rng, err := keygroup.NewRange(0, 127)
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}

	metrics := metric.NewRegistry()

	cfg := storage.DefaultConfig(t.TempDir(), rng)
	cfg.WAL.SyncMode = wal.SyncModeSync
	cfg.WAL.BatchCount = 1
	cfg.Metrics = metrics

	backend, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	router := NewRouter(&RouterConfig{
		StateService:      service.NewStateService(backend, nil),
		CheckpointService: service.NewCheckpointService(backend, nil),
		Logger:            discardLogger(),
		Metrics:           metrics,
	})
	return router, metrics
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest("POST", path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterStateFlow(t *testing.T) {
	router, _ := testRouter(t)

	rec := postJSON(t, router, "/v1/states", map[string]string{
		"name":                 "counts",
		"key_serializer":       "string",
		"namespace_serializer": "void",
		"value_serializer":     "bytes",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on response")
	}

	rec = postJSON(t, router, "/v1/states/counts/entries", map[string][]byte{
		"key":   []byte("k"),
		"value": []byte("v"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, router, "/v1/checkpoints", map[string]any{"wait": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest("GET", "/v1/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	// Generate one request so request metrics exist.
	postJSON(t, router, "/v1/states", map[string]string{
		"name":                 "counts",
		"key_serializer":       "string",
		"namespace_serializer": "void",
		"value_serializer":     "bytes",
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "streammesh_requests_total") {
		t.Error("metrics output missing streammesh_requests_total")
	}
}

func TestRouterRateLimit(t *testing.T) {
	rng, err := keygroup.NewRange(0, 3)
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}
	cfg := storage.DefaultConfig(t.TempDir(), rng)
	cfg.WAL.SyncMode = wal.SyncModeSync
	cfg.WAL.BatchCount = 1
	backend, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	router := NewRouter(&RouterConfig{
		StateService:      service.NewStateService(backend, nil),
		CheckpointService: service.NewCheckpointService(backend, nil),
		Logger:            discardLogger(),
		RateLimit:         1,
		RateBurst:         1,
	})

	send := func(path string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("/v1/states"); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	if code := send("/v1/states"); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", code)
	}

	// Health probes bypass the limiter.
	if code := send("/health"); code != http.StatusOK {
		t.Errorf("health during throttle = %d, want 200", code)
	}
}

func TestServerShutdown(t *testing.T) {
	srv := New("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}
