package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plansmith/plansmith/internal/errors"
)

func localChatHandler(t *testing.T, model, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Messages) == 0 {
			t.Error("no messages in request")
		}

		resp := map[string]any{
			"model": model,
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestLocalHTTPGenerate(t *testing.T) {
	server := newTestServer(t, localChatHandler(t, "qwen2.5-coder-7b", `{"phases": []}`))

	gen := NewLocalHTTP(10 * time.Second)
	res := gen.Generate(context.Background(), &Request{
		SystemPrompt: "You are a planner.",
		UserPrompt:   "Plan a todo app.",
		Model:        "qwen2.5-coder-7b",
		Endpoints:    []string{server.URL},
	})

	if !res.OK() {
		t.Fatalf("Generate() failed: %+v", res.Failure)
	}
	if res.Content != `{"phases": []}` {
		t.Errorf("unexpected content: %s", res.Content)
	}
	if res.ModelID != "qwen2.5-coder-7b" {
		t.Errorf("unexpected model: %s", res.ModelID)
	}
	if res.BackendID != "local" {
		t.Errorf("unexpected backend id: %s", res.BackendID)
	}
	if res.Endpoint != server.URL+"/v1" {
		t.Errorf("unexpected endpoint: %s", res.Endpoint)
	}
}

func TestLocalHTTPFailover(t *testing.T) {
	var badHits atomic.Int32
	bad := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	good := newTestServer(t, localChatHandler(t, "llama3.1", "plan text"))

	gen := NewLocalHTTP(10 * time.Second)
	res := gen.Generate(context.Background(), &Request{
		UserPrompt: "hello",
		Endpoints:  []string{bad.URL, good.URL},
	})

	if !res.OK() {
		t.Fatalf("Generate() failed: %+v", res.Failure)
	}
	if res.Endpoint != good.URL+"/v1" {
		t.Errorf("expected failover to %s/v1, got %s", good.URL, res.Endpoint)
	}
	if badHits.Load() != 1 {
		t.Errorf("bad endpoint hit %d times, want 1", badHits.Load())
	}
}

func TestLocalHTTPAllEndpointsFail(t *testing.T) {
	bad := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	closed := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	gen := NewLocalHTTP(2 * time.Second)
	res := gen.Generate(context.Background(), &Request{
		UserPrompt: "hello",
		Endpoints:  []string{bad.URL, closedURL},
	})

	if res.OK() {
		t.Fatal("Generate() succeeded, want failure")
	}
	if res.Failure.Code != errors.ErrCodeTransportFailure {
		t.Errorf("unexpected failure code: %s", res.Failure.Code)
	}
	if !strings.Contains(res.Failure.Reason, "generation failed across local endpoints") {
		t.Errorf("reason missing prefix: %s", res.Failure.Reason)
	}
	if !strings.Contains(res.Failure.Reason, bad.URL) || !strings.Contains(res.Failure.Reason, closedURL) {
		t.Errorf("reason should name every endpoint: %s", res.Failure.Reason)
	}
	if !strings.Contains(res.Failure.Reason, "status 500") {
		t.Errorf("reason missing per-endpoint error: %s", res.Failure.Reason)
	}
}

func TestLocalHTTPNoEndpoints(t *testing.T) {
	gen := NewLocalHTTP(time.Second)
	res := gen.Generate(context.Background(), &Request{UserPrompt: "hello"})

	if res.OK() {
		t.Fatal("Generate() succeeded without endpoints")
	}
	if res.Failure.Code != errors.ErrCodeBackendUnavailable {
		t.Errorf("unexpected failure code: %s", res.Failure.Code)
	}
	if res.Failure.Reason != "no local inference server reachable" {
		t.Errorf("unexpected reason: %s", res.Failure.Reason)
	}
}

func TestLocalHTTPServerHint(t *testing.T) {
	var firstHits atomic.Int32
	first := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		localChatHandler(t, "m1", "from first")(w, r)
	}))
	hinted := newTestServer(t, localChatHandler(t, "m2", "from hinted"))

	gen := NewLocalHTTP(10 * time.Second)
	res := gen.Generate(context.Background(), &Request{
		UserPrompt: "hello",
		Endpoints:  []string{first.URL, hinted.URL},
		ServerHint: hinted.URL,
	})

	if !res.OK() {
		t.Fatalf("Generate() failed: %+v", res.Failure)
	}
	if res.Content != "from hinted" {
		t.Errorf("hint not honored, got content %q", res.Content)
	}
	if firstHits.Load() != 0 {
		t.Errorf("unhinted endpoint hit %d times, want 0", firstHits.Load())
	}
}

func TestLocalHTTPTimeout(t *testing.T) {
	slow := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))

	gen := NewLocalHTTP(50 * time.Millisecond)
	res := gen.Generate(context.Background(), &Request{
		UserPrompt: "hello",
		Endpoints:  []string{slow.URL},
	})

	if res.OK() {
		t.Fatal("Generate() succeeded against a stalled server")
	}
	if res.Failure.Code != errors.ErrCodeTransportTimeout {
		t.Errorf("unexpected failure code: %s", res.Failure.Code)
	}
}

func TestLocalHTTPEmptyChoices(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model": "m", "choices": []}`))
	}))

	gen := NewLocalHTTP(time.Second)
	res := gen.Generate(context.Background(), &Request{
		UserPrompt: "hello",
		Endpoints:  []string{server.URL},
	})

	if res.OK() {
		t.Fatal("Generate() succeeded with no choices")
	}
	if !strings.Contains(res.Failure.Reason, "missing choices") {
		t.Errorf("unexpected reason: %s", res.Failure.Reason)
	}
}

func TestOrderEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []string
		hint      string
		want      []string
	}{
		{
			name:      "normalizes and dedupes",
			endpoints: []string{"localhost:1234", "http://localhost:1234/v1/", "localhost:11434"},
			want:      []string{"http://localhost:1234/v1", "http://localhost:11434/v1"},
		},
		{
			name:      "hint moves to front",
			endpoints: []string{"localhost:1234", "localhost:11434"},
			hint:      "localhost:11434",
			want:      []string{"http://localhost:11434/v1", "http://localhost:1234/v1"},
		},
		{
			name:      "hint already first",
			endpoints: []string{"localhost:1234", "localhost:11434"},
			hint:      "localhost:1234",
			want:      []string{"http://localhost:1234/v1", "http://localhost:11434/v1"},
		},
		{
			name:      "unknown hint ignored",
			endpoints: []string{"localhost:1234"},
			hint:      "localhost:9999",
			want:      []string{"http://localhost:1234/v1"},
		},
		{
			name:      "skips blanks",
			endpoints: []string{"", "  ", "localhost:1234"},
			want:      []string{"http://localhost:1234/v1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orderEndpoints(tt.endpoints, tt.hint)
			if len(got) != len(tt.want) {
				t.Fatalf("orderEndpoints() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("orderEndpoints()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:1234", "http://localhost:1234/v1"},
		{"http://localhost:11434", "http://localhost:11434/v1"},
		{"http://localhost:1234/v1", "http://localhost:1234/v1"},
		{"http://localhost:1234/v1/", "http://localhost:1234/v1"},
		{"https://inference.internal/v1", "https://inference.internal/v1"},
		{"  ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeBaseURL(tt.in); got != tt.want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
