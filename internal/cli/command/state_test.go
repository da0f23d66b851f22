package command

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestStateCommand(t *testing.T) {
	cmd := StateCommand()
	if cmd == nil {
		t.Fatal("StateCommand returned nil")
	}

	if cmd.Name != "state" {
		t.Errorf("Name = %q, want %q", cmd.Name, "state")
	}

	subNames := make(map[string]bool)
	for _, sub := range cmd.Subcommands {
		subNames[sub.Name] = true
	}

	requiredSubs := []string{"register", "list", "put", "get", "delete"}
	for _, name := range requiredSubs {
		if !subNames[name] {
			t.Errorf("missing subcommand: %s", name)
		}
	}
}

func TestStateRegister(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/states", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["name"] != "counts" {
			t.Errorf("name = %q, want %q", body["name"], "counts")
		}
		if body["key_serializer"] != "string" {
			t.Errorf("key_serializer = %q, want %q", body["key_serializer"], "string")
		}

		envelopeResponse(w, http.StatusCreated, map[string]any{
			"state_id": 0,
			"name":     "counts",
		})
	})

	ctx := makeTestContext(server, map[string]any{
		"key-serializer":       "string",
		"namespace-serializer": "void",
		"value-serializer":     "bytes",
	}, []string{"counts"})

	if err := stateRegister(ctx); err != nil {
		t.Fatalf("stateRegister failed: %v", err)
	}
}

func TestStateRegister_NoName(t *testing.T) {
	ctx := makeTestContext(nil, map[string]any{
		"key-serializer":       "bytes",
		"namespace-serializer": "void",
		"value-serializer":     "bytes",
	}, nil)

	err := stateRegister(ctx)
	if err == nil {
		t.Fatal("expected error for missing state name")
	}
	if !strings.Contains(err.Error(), "name required") {
		t.Errorf("error = %q, want name required", err.Error())
	}
}

func TestStateRegister_Conflict(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/states", func(w http.ResponseWriter, r *http.Request) {
		errorEnvelope(w, http.StatusConflict, "SM-STOR-4091", "state already registered")
	})

	ctx := makeTestContext(server, map[string]any{
		"key-serializer":       "bytes",
		"namespace-serializer": "void",
		"value-serializer":     "bytes",
	}, []string{"counts"})

	err := stateRegister(ctx)
	if err == nil {
		t.Fatal("expected error for conflict")
	}
	if !strings.Contains(err.Error(), "SM-STOR-4091") {
		t.Errorf("error = %q, want error code SM-STOR-4091", err.Error())
	}
}

func TestStateList(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/states", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		envelopeResponse(w, http.StatusOK, map[string]any{
			"range_start":      0,
			"range_end":        127,
			"registered_count": 1,
			"states": []map[string]any{
				{
					"id":                   0,
					"name":                 "counts",
					"key_serializer":       "string",
					"namespace_serializer": "void",
					"value_serializer":     "bytes",
				},
			},
		})
	})

	ctx := makeTestContext(server, nil, nil)
	if err := stateList(ctx); err != nil {
		t.Fatalf("stateList failed: %v", err)
	}
}

func TestStatePutGetDelete(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	stored := map[string][]byte{}

	server.handle("/v1/states/counts/entries/get", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key []byte `json:"key"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		value, ok := stored[string(body.Key)]
		if !ok {
			errorEnvelope(w, http.StatusNotFound, "SM-STOR-4040", "entry not found")
			return
		}
		envelopeResponse(w, http.StatusOK, map[string]any{"value": value})
	})
	server.handle("/v1/states/counts/entries/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key []byte `json:"key"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		delete(stored, string(body.Key))
		envelopeResponse(w, http.StatusOK, nil)
	})
	server.handle("/v1/states/counts/entries", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key   []byte `json:"key"`
			Value []byte `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		stored[string(body.Key)] = body.Value
		envelopeResponse(w, http.StatusOK, nil)
	})

	putCtx := makeTestContext(server, map[string]any{
		"key":       "user-1",
		"namespace": "",
		"value":     "42",
	}, []string{"counts"})
	if err := statePut(putCtx); err != nil {
		t.Fatalf("statePut failed: %v", err)
	}

	getCtx := makeTestContext(server, map[string]any{
		"key":       "user-1",
		"namespace": "",
	}, []string{"counts"})
	if err := stateGet(getCtx); err != nil {
		t.Fatalf("stateGet failed: %v", err)
	}

	delCtx := makeTestContext(server, map[string]any{
		"key":       "user-1",
		"namespace": "",
	}, []string{"counts"})
	if err := stateDelete(delCtx); err != nil {
		t.Fatalf("stateDelete failed: %v", err)
	}

	if err := stateGet(getCtx); err == nil {
		t.Fatal("expected error for deleted entry")
	} else if !strings.Contains(err.Error(), "SM-STOR-4040") {
		t.Errorf("error = %q, want error code SM-STOR-4040", err.Error())
	}
}
