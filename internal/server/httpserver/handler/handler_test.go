package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yndnr/streammesh-go/internal/core/service"
	"github.com/yndnr/streammesh-go/internal/storage"
	"github.com/yndnr/streammesh-go/internal/storage/wal"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()

	rng, err := keygroup.NewRange(0, 127)
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

	return New(service.NewStateService(backend, nil), service.NewCheckpointService(backend, nil), nil)
}

func doJSON(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return &resp
}

func registerState(t *testing.T, h *Handler, name string) {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/states", &RegisterStateRequest{
		Name:                name,
		KeySerializer:       "string",
		NamespaceSerializer: "void",
		ValueSerializer:     "bytes",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := testHandler(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := doJSON(t, h, "GET", path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		resp := decodeEnvelope(t, rec)
		if resp.Code != "OK" {
			t.Errorf("GET %s code = %q, want OK", path, resp.Code)
		}
	}
}

func TestRegisterState(t *testing.T) {
	h := testHandler(t)

	rec := doJSON(t, h, "POST", "/v1/states", &RegisterStateRequest{
		Name:                "counts",
		KeySerializer:       "string",
		NamespaceSerializer: "void",
		ValueSerializer:     "long",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	// Missing serializer descriptors are a 400.
	rec = doJSON(t, h, "POST", "/v1/states", &RegisterStateRequest{Name: "bad"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "SM-ARG-1002" {
		t.Errorf("X-Error-Code = %q, want SM-ARG-1002", got)
	}

	// Conflicting re-registration is a 409.
	rec = doJSON(t, h, "POST", "/v1/states", &RegisterStateRequest{
		Name:                "counts",
		KeySerializer:       "string",
		NamespaceSerializer: "void",
		ValueSerializer:     "double",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	h := testHandler(t)
	registerState(t, h, "counts")

	rec := doJSON(t, h, "POST", "/v1/states/counts/entries", &EntryRequest{
		Key:   []byte("user-1"),
		Value: []byte("41"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "POST", "/v1/states/counts/entries/get", &EntryRequest{Key: []byte("user-1")})
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var entry EntryResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if string(entry.Value) != "41" {
		t.Errorf("value = %q, want 41", entry.Value)
	}

	rec = doJSON(t, h, "POST", "/v1/states/counts/entries/delete", &EntryRequest{Key: []byte("user-1")})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/v1/states/counts/entries/get", &EntryRequest{Key: []byte("user-1")})
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "SM-STOR-4040" {
		t.Errorf("X-Error-Code = %q, want SM-STOR-4040", got)
	}
}

func TestEntryUnregisteredState(t *testing.T) {
	h := testHandler(t)

	rec := doJSON(t, h, "POST", "/v1/states/ghost/entries", &EntryRequest{
		Key:   []byte("k"),
		Value: []byte("v"),
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "SM-STOR-4041" {
		t.Errorf("X-Error-Code = %q, want SM-STOR-4041", got)
	}
}

func TestStateStatus(t *testing.T) {
	h := testHandler(t)
	registerState(t, h, "counts")

	rec := doJSON(t, h, "GET", "/v1/states", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var status StateStatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.RegisteredCount != 1 || status.RangeEnd != 127 {
		t.Errorf("status = %+v, want 1 state over [0, 127]", status)
	}
}

func TestTriggerCheckpoint(t *testing.T) {
	h := testHandler(t)
	registerState(t, h, "counts")

	rec := doJSON(t, h, "POST", "/v1/states/counts/entries", &EntryRequest{
		Key:   []byte("k"),
		Value: []byte("v"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/v1/checkpoints", &TriggerCheckpointRequest{Wait: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	data, _ := json.Marshal(resp.Data)
	var out TriggerCheckpointResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode trigger response: %v", err)
	}
	if out.Outcome != "completed" {
		t.Errorf("outcome = %q, want completed", out.Outcome)
	}
	if out.Handle == nil || out.Handle.Location == "" {
		t.Errorf("handle = %+v, want durable location", out.Handle)
	}
	if out.Metrics == nil || out.Metrics.EntryCount != 1 {
		t.Errorf("metrics = %+v, want entry_count 1", out.Metrics)
	}
}

func TestTriggerCheckpointAsync(t *testing.T) {
	h := testHandler(t)
	registerState(t, h, "counts")

	rec := doJSON(t, h, "POST", "/v1/checkpoints", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestLatestCheckpointEmpty(t *testing.T) {
	h := testHandler(t)

	rec := doJSON(t, h, "GET", "/v1/checkpoints/latest", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "SM-CKPT-4040" {
		t.Errorf("X-Error-Code = %q, want SM-CKPT-4040", got)
	}
}

func TestRestoreCheckpointNotFound(t *testing.T) {
	h := testHandler(t)

	rec := doJSON(t, h, "POST", "/v1/checkpoints/restore", &RestoreCheckpointRequest{CheckpointID: 99})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInvalidBody(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest("POST", "/v1/states", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "SM-ARG-1001" {
		t.Errorf("X-Error-Code = %q, want SM-ARG-1001", got)
	}
}
