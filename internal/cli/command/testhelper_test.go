package command

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// mockServer creates a test HTTP server with custom handlers.
type mockServer struct {
	*httptest.Server
	handlers map[string]http.HandlerFunc
}

// newMockServer creates a new mock server.
func newMockServer() *mockServer {
	m := &mockServer{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Find handler by path prefix match
		for pattern, handler := range m.handlers {
			if strings.HasPrefix(r.URL.Path, pattern) {
				handler(w, r)
				return
			}
		}
		http.NotFound(w, r)
	}))
	return m
}

// handle registers a handler for a path pattern.
func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.handlers[pattern] = handler
}

// envelopeResponse writes a success envelope with the given data.
func envelopeResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       "OK",
		"message":    "Success",
		"request_id": "req-test",
		"timestamp":  time.Now().UnixMilli(),
		"data":       data,
	})
}

// errorEnvelope writes an error envelope.
func errorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
	})
}

// makeTestContext creates a CLI context with specific flags for testing
// actions. extraFlags maps flag name to its default value for non-global
// flags.
func makeTestContext(server *mockServer, extraFlags map[string]any, args []string) *cli.Context {
	app := &cli.App{
		Name:  "test",
		Flags: globalFlags(),
	}

	allFlags := append([]cli.Flag{}, globalFlags()...)

	existingFlags := make(map[string]bool)
	for _, f := range allFlags {
		for _, name := range f.Names() {
			existingFlags[name] = true
		}
	}

	for name, val := range extraFlags {
		if existingFlags[name] {
			continue
		}
		switch v := val.(type) {
		case string:
			allFlags = append(allFlags, &cli.StringFlag{Name: name, Value: v})
		case int:
			allFlags = append(allFlags, &cli.IntFlag{Name: name, Value: v})
		case uint64:
			allFlags = append(allFlags, &cli.Uint64Flag{Name: name, Value: v})
		case bool:
			allFlags = append(allFlags, &cli.BoolFlag{Name: name, Value: v})
		case time.Duration:
			allFlags = append(allFlags, &cli.DurationFlag{Name: name, Value: v})
		}
		existingFlags[name] = true
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range allFlags {
		f.Apply(set)
	}

	cliArgs := []string{}
	if server != nil {
		cliArgs = append(cliArgs, "--server", server.URL)
	}
	for name, val := range extraFlags {
		switch v := val.(type) {
		case string:
			if v != "" {
				cliArgs = append(cliArgs, "--"+name, v)
			}
		case int:
			cliArgs = append(cliArgs, "--"+name, fmt.Sprintf("%d", v))
		case uint64:
			if v != 0 {
				cliArgs = append(cliArgs, "--"+name, fmt.Sprintf("%d", v))
			}
		case bool:
			if v {
				cliArgs = append(cliArgs, "--"+name)
			}
		case time.Duration:
			if v != 0 {
				cliArgs = append(cliArgs, "--"+name, v.String())
			}
		}
	}
	cliArgs = append(cliArgs, args...)

	set.Parse(cliArgs)

	return cli.NewContext(app, set, nil)
}
