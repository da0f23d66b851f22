package httpserver

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRequestID(t *testing.T) {
	middleware := RequestID()
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestIDFromContext(r.Context()) == "" {
			t.Error("expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		id := rec.Header().Get("X-Request-ID")
		if id == "" {
			t.Fatal("expected X-Request-ID response header")
		}
		if !strings.HasPrefix(id, "req-") {
			t.Errorf("request ID = %q, want req- prefix", id)
		}
	})

	t.Run("preserves provided request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "req-custom")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "req-custom" {
			t.Errorf("X-Request-ID = %q, want req-custom", got)
		}
	})
}

func TestRecover(t *testing.T) {
	handler := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := rec.Header().Get("X-Error-Code"); got != "SM-SYS-5000" {
		t.Errorf("X-Error-Code = %q, want SM-SYS-5000", got)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst of 2 is allowed, the third request is rejected.
	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("second request = %d, want 200", code)
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}

	// A different client has its own bucket.
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client = %d, want 200", code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []string{"first", "second", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*http.Request)
		want   string
	}{
		{
			name:  "remote addr",
			setup: func(r *http.Request) { r.RemoteAddr = "10.1.2.3:9000" },
			want:  "10.1.2.3",
		},
		{
			name:  "ipv6 remote addr",
			setup: func(r *http.Request) { r.RemoteAddr = "[::1]:9000" },
			want:  "::1",
		},
		{
			name:  "x-forwarded-for first hop",
			setup: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1") },
			want:  "203.0.113.5",
		},
		{
			name:  "x-real-ip",
			setup: func(r *http.Request) { r.Header.Set("X-Real-IP", "198.51.100.7") },
			want:  "198.51.100.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tt.setup(req)
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
