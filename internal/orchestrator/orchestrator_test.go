package orchestrator

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/buildplan"
	"github.com/plansmith/plansmith/internal/credential"
	"github.com/plansmith/plansmith/internal/errors"
	"github.com/plansmith/plansmith/internal/log"
	"github.com/plansmith/plansmith/internal/probe"
	"github.com/plansmith/plansmith/internal/trace"
)

const planOutput = `{
	"title": "Todo App",
	"phases": [{"id": "phase-1", "name": "Foundation", "order": 1}],
	"packets": [{
		"id": "wp-1",
		"phase_id": "phase-1",
		"title": "Scaffold project",
		"type": "setup",
		"priority": "high",
		"status": "pending"
	}]
}`

// fakeGenerator returns scripted results in order and records every
// request it saw.
type fakeGenerator struct {
	id       string
	scripted []*backend.Result
	calls    []*backend.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req *backend.Request) *backend.Result {
	reqCopy := *req
	f.calls = append(f.calls, &reqCopy)
	if len(f.scripted) == 0 {
		return backend.Fail(f.id, errors.ErrCodeTransportFailure, "no scripted result", time.Millisecond)
	}
	res := f.scripted[0]
	f.scripted = f.scripted[1:]
	return res
}

func succeedWith(id, model, content string) *backend.Result {
	return backend.Success(id, model, content, time.Millisecond)
}

func failWith(id, reason string) *backend.Result {
	return backend.Fail(id, errors.ErrCodeTransportFailure, reason, time.Millisecond)
}

func newTestService(registry *backend.Registry, opts Options) *Service {
	logger := log.New(log.Config{Level: log.LevelError, Output: log.NewOutput(io.Discard)})
	return New(registry, probe.NewProber(200*time.Millisecond), credential.NewResolver(nil), logger, opts)
}

// newModelsServer serves an OpenAI-compatible model listing on IPv4
// loopback, standing in for a running local inference server.
func newModelsServer(t *testing.T, modelID string) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start test server: %v", err)
	}
	server := &httptest.Server{
		Listener: listener,
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data": [{"id": "` + modelID + `"}]}`))
		})},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}

// deadServerURL returns a loopback URL with nothing listening on it.
func deadServerURL(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to reserve port: %v", err)
	}
	url := "http://" + listener.Addr().String()
	_ = listener.Close()
	return url
}

func hasEvent(events []trace.Event, eventType trace.EventType) bool {
	for _, e := range events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

func errorCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	var perr *errors.PlansmithError
	if !stderrors.As(err, &perr) {
		t.Fatalf("error is not a structured error: %v", err)
	}
	return perr.Code
}

func TestGenerateExplicitCloudPreferred(t *testing.T) {
	fakeLocal := &fakeGenerator{id: "local"}
	fakeCloud := &fakeGenerator{id: "anthropic", scripted: []*backend.Result{
		succeedWith("anthropic", "claude-sonnet-4-0", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: "http://127.0.0.1:1", Priority: 1},
		{ID: "anthropic", Kind: backend.KindCloudAPI, Provider: "anthropic", Priority: 2},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "anthropic",
		APIKey:            "req-key",
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Plan == nil {
		t.Fatal("Generate() returned no plan")
	}
	if resp.BackendUsed != "anthropic" {
		t.Errorf("backend used = %s, want anthropic", resp.BackendUsed)
	}
	if len(fakeLocal.calls) != 0 {
		t.Errorf("local adapter called %d times for an explicit cloud preference", len(fakeLocal.calls))
	}
	if len(fakeCloud.calls) != 1 {
		t.Fatalf("cloud adapter called %d times, want 1", len(fakeCloud.calls))
	}
	if fakeCloud.calls[0].APIKey != "req-key" {
		t.Errorf("cloud call key = %q, want the request-supplied key", fakeCloud.calls[0].APIKey)
	}
	if hasEvent(resp.Trace, trace.EventTypeProbe) {
		t.Error("explicit cloud preference should not probe local servers")
	}
}

func TestGenerateCredentialMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	fakeLocal := &fakeGenerator{id: "local"}
	fakeCloud := &fakeGenerator{id: "anthropic"}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "anthropic", Kind: backend.KindCloudAPI, Provider: "anthropic", Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "anthropic",
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if code := errorCode(t, err); code != errors.ErrCodeCredentialMissing {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeCredentialMissing)
	}
	if len(fakeCloud.calls) != 0 || len(fakeLocal.calls) != 0 {
		t.Error("adapters were called despite the missing credential")
	}
	if resp == nil || len(resp.Trace) == 0 {
		t.Fatal("response should carry the trace even on error")
	}
	if resp.Plan != nil {
		t.Error("failed run returned a plan")
	}
}

func TestGenerateAllLocalsOfflineNoPaidFallback(t *testing.T) {
	// A resolvable credential must not matter when the caller did not opt
	// into paid fallback.
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	fakeLocal := &fakeGenerator{id: "local"}
	fakeCloud := &fakeGenerator{id: "anthropic"}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: deadServerURL(t), Priority: 1},
		{ID: "ollama", Kind: backend.KindLocalHTTP, BaseURL: deadServerURL(t), Priority: 2},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		AllowPaidFallback: false,
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if code := errorCode(t, err); code != errors.ErrCodeAllBackendsExhausted {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeAllBackendsExhausted)
	}
	if !strings.Contains(err.Error(), "offline") {
		t.Errorf("diagnostic should name the offline servers: %v", err)
	}
	if len(fakeCloud.calls) != 0 {
		t.Errorf("cloud adapter called %d times without paid fallback opt-in", len(fakeCloud.calls))
	}
	if len(fakeLocal.calls) != 0 {
		t.Errorf("local adapter called %d times with every server offline", len(fakeLocal.calls))
	}
	if !hasEvent(resp.Trace, trace.EventTypeProbe) {
		t.Error("trace missing the probe event")
	}
}

func TestGenerateLocalSuccess(t *testing.T) {
	server := newModelsServer(t, "qwen2.5-coder-7b")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "qwen2.5-coder-7b", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: server.URL, Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt: "Plan a todo app.",
		ExistingPackets: []buildplan.ExistingPacket{
			{ID: "wp-old", Title: "Legacy migration", Status: buildplan.StatusCompleted, Priority: buildplan.PriorityHigh},
		},
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(fakeLocal.calls) != 1 {
		t.Fatalf("local adapter called %d times, want 1", len(fakeLocal.calls))
	}

	call := fakeLocal.calls[0]
	if len(call.Endpoints) != 1 || call.Endpoints[0] != server.URL {
		t.Errorf("call endpoints = %v, want the probed server", call.Endpoints)
	}
	if call.Model != "qwen2.5-coder-7b" {
		t.Errorf("call model = %q, want the probed loaded model", call.Model)
	}

	if got := len(resp.Plan.Packets); got != 2 {
		t.Fatalf("merged plan has %d packets, want 2", got)
	}
	if resp.Plan.Packets[0].ID != "wp-1" || resp.Plan.Packets[1].ID != "wp-old" {
		t.Errorf("merged order wrong: %s, %s", resp.Plan.Packets[0].ID, resp.Plan.Packets[1].ID)
	}
	if !resp.Plan.Packets[1].Existing {
		t.Error("re-inserted packet not marked existing")
	}
	if resp.Plan.Packets[1].PhaseID != "phase-1" {
		t.Errorf("re-inserted packet phase = %s, want the first phase", resp.Plan.Packets[1].PhaseID)
	}
	if resp.Stats.Added != 1 || resp.Stats.Missing != 1 {
		t.Errorf("stats = %+v, want added 1 missing 1", resp.Stats)
	}
	if resp.BackendUsed != "local" {
		t.Errorf("backend used = %s, want local", resp.BackendUsed)
	}
	if resp.ModelUsed != "qwen2.5-coder-7b" {
		t.Errorf("model used = %s", resp.ModelUsed)
	}
	if resp.Fingerprint == "" {
		t.Error("response missing the plan fingerprint")
	}
}

func TestGenerateRetrySimplified(t *testing.T) {
	server := newModelsServer(t, "llama3.1")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "llama3.1", "sure, here is a plan but in prose"),
		succeedWith("local", "llama3.1", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: server.URL, Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:  "Plan a todo app.",
		Temperature: 0.9,
		UseRetry:    true,
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(fakeLocal.calls) != 2 {
		t.Fatalf("local adapter called %d times, want 2", len(fakeLocal.calls))
	}
	if fakeLocal.calls[0].Temperature != 0.9 {
		t.Errorf("first call temperature = %v, want the request's", fakeLocal.calls[0].Temperature)
	}
	if fakeLocal.calls[1].Temperature != 0.3 {
		t.Errorf("retry temperature = %v, want the lowered retry value", fakeLocal.calls[1].Temperature)
	}
	if !strings.Contains(fakeLocal.calls[1].UserPrompt, "single JSON object") {
		t.Errorf("retry prompt missing the JSON-only directive: %q", fakeLocal.calls[1].UserPrompt)
	}
	if !strings.Contains(fakeLocal.calls[1].UserPrompt, "Plan a todo app.") {
		t.Errorf("retry prompt dropped the original ask: %q", fakeLocal.calls[1].UserPrompt)
	}
	if !hasEvent(resp.Trace, trace.EventTypeRetry) {
		t.Error("trace missing the retry event")
	}
}

func TestGenerateRetryNotRequested(t *testing.T) {
	server := newModelsServer(t, "llama3.1")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "llama3.1", "still prose, no json"),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: server.URL, Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	_, err := svc.Generate(context.Background(), &Request{
		UserPrompt: "Plan a todo app.",
		UseRetry:   false,
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if code := errorCode(t, err); code != errors.ErrCodeAllBackendsExhausted {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeAllBackendsExhausted)
	}
	if !strings.Contains(err.Error(), "usable plan") {
		t.Errorf("diagnostic should carry the extraction failure: %v", err)
	}
	if len(fakeLocal.calls) != 1 {
		t.Errorf("local adapter called %d times, want exactly 1", len(fakeLocal.calls))
	}
}

func TestGenerateRetryRespectsMaxAttempts(t *testing.T) {
	server := newModelsServer(t, "llama3.1")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "llama3.1", "prose"),
		succeedWith("local", "llama3.1", "more prose"),
		succeedWith("local", "llama3.1", "even more prose"),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: server.URL, Priority: 1},
	})

	opts := DefaultOptions()
	opts.Retry.MaxAttempts = 2
	svc := newTestService(registry, opts)
	_, err := svc.Generate(context.Background(), &Request{
		UserPrompt: "Plan a todo app.",
		UseRetry:   true,
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if len(fakeLocal.calls) != 3 {
		t.Errorf("local adapter called %d times, want 1 initial + 2 retries", len(fakeLocal.calls))
	}
}

func TestGeneratePaidFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	fakeLocal := &fakeGenerator{id: "local"}
	fakeCloud := &fakeGenerator{id: "anthropic", scripted: []*backend.Result{
		succeedWith("anthropic", "claude-sonnet-4-0", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: deadServerURL(t), Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		AllowPaidFallback: true,
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.BackendUsed != "anthropic" {
		t.Errorf("backend used = %s, want anthropic", resp.BackendUsed)
	}
	if len(fakeCloud.calls) != 1 {
		t.Fatalf("cloud adapter called %d times, want 1", len(fakeCloud.calls))
	}
	if fakeCloud.calls[0].APIKey != "env-key" {
		t.Errorf("fallback key = %q, want the environment key", fakeCloud.calls[0].APIKey)
	}
	if !hasEvent(resp.Trace, trace.EventTypeFallback) {
		t.Error("trace missing the fallback event")
	}
}

func TestGeneratePaidFallbackWithoutCredential(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	fakeCloud := &fakeGenerator{id: "anthropic"}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, &fakeGenerator{id: "local"})
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: deadServerURL(t), Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	_, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		AllowPaidFallback: true,
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "offline") {
		t.Errorf("diagnostic should keep the earlier offline detail: %v", err)
	}
	if len(fakeCloud.calls) != 0 {
		t.Errorf("cloud adapter called %d times without a resolvable credential", len(fakeCloud.calls))
	}
}

func TestGenerateExplicitCLI(t *testing.T) {
	fakeLocal := &fakeGenerator{id: "local"}
	fakeCLI := &fakeGenerator{id: "claude-cli", scripted: []*backend.Result{
		succeedWith("claude-cli", "sonnet", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.RegisterGenerator(backend.KindCLISubprocess, fakeCLI)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: "http://127.0.0.1:1", Priority: 1},
		{ID: "claude-cli", Kind: backend.KindCLISubprocess, Priority: 3},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "claude-cli",
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.BackendUsed != "claude-cli" {
		t.Errorf("backend used = %s, want claude-cli", resp.BackendUsed)
	}
	if len(fakeCLI.calls) != 1 {
		t.Errorf("cli adapter called %d times, want 1", len(fakeCLI.calls))
	}
	if len(fakeLocal.calls) != 0 {
		t.Errorf("local adapter called %d times for an explicit cli preference", len(fakeLocal.calls))
	}
	if hasEvent(resp.Trace, trace.EventTypeProbe) {
		t.Error("explicit cli preference should not probe local servers")
	}
}

func TestGenerateExplicitCLIFailureNoFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	server := newModelsServer(t, "llama3.1")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "llama3.1", planOutput),
	}}
	fakeCloud := &fakeGenerator{id: "anthropic"}
	fakeCLI := &fakeGenerator{id: "claude-cli", scripted: []*backend.Result{
		failWith("claude-cli", "claude exited with status 1"),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.RegisterGenerator(backend.KindCLISubprocess, fakeCLI)
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: server.URL, Priority: 1},
		{ID: "claude-cli", Kind: backend.KindCLISubprocess, Priority: 3},
	})

	svc := newTestService(registry, DefaultOptions())
	_, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "claude-cli",
		AllowPaidFallback: true,
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "claude exited") {
		t.Errorf("diagnostic should carry the cli failure: %v", err)
	}
	if len(fakeLocal.calls) != 0 || len(fakeCloud.calls) != 0 {
		t.Error("explicit cli failure must not fall back to other backends")
	}
}

func TestGenerateExplicitCloudPaidTail(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "env-a")

	fakeOpenAI := &fakeGenerator{id: "openai", scripted: []*backend.Result{
		failWith("openai", "openai error: model overloaded"),
	}}
	fakeAnthropic := &fakeGenerator{id: "anthropic", scripted: []*backend.Result{
		succeedWith("anthropic", "claude-sonnet-4-0", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterProvider("openai", fakeOpenAI)
	registry.RegisterProvider("anthropic", fakeAnthropic)
	registry.SetCandidates([]backend.Candidate{
		{ID: "openai", Kind: backend.KindCloudAPI, Provider: "openai", Priority: 1},
		{ID: "anthropic", Kind: backend.KindCloudAPI, Provider: "anthropic", Priority: 2},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "openai",
		APIKey:            "openai-key",
		AllowPaidFallback: true,
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.BackendUsed != "anthropic" {
		t.Errorf("backend used = %s, want the paid fallback provider", resp.BackendUsed)
	}
	if len(fakeOpenAI.calls) != 1 {
		t.Errorf("preferred provider called %d times, want 1", len(fakeOpenAI.calls))
	}
	if len(fakeAnthropic.calls) != 1 {
		t.Fatalf("fallback provider called %d times, want 1", len(fakeAnthropic.calls))
	}
	if fakeAnthropic.calls[0].APIKey != "env-a" {
		t.Errorf("fallback key = %q, the request key must not leak across providers", fakeAnthropic.calls[0].APIKey)
	}
}

func TestGenerateExplicitCloudSameProviderNoTail(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-a")

	fakeAnthropic := &fakeGenerator{id: "anthropic", scripted: []*backend.Result{
		failWith("anthropic", "anthropic error: overloaded"),
	}}

	registry := backend.NewRegistry()
	registry.RegisterProvider("anthropic", fakeAnthropic)
	registry.SetCandidates([]backend.Candidate{
		{ID: "anthropic", Kind: backend.KindCloudAPI, Provider: "anthropic", Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	_, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "anthropic",
		AllowPaidFallback: true,
	})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if code := errorCode(t, err); code != errors.ErrCodeAllBackendsExhausted {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeAllBackendsExhausted)
	}
	if len(fakeAnthropic.calls) != 1 {
		t.Errorf("provider called %d times, a failed explicit call must not repeat", len(fakeAnthropic.calls))
	}
}

func TestGenerateServerHint(t *testing.T) {
	first := newModelsServer(t, "alpha-model")
	hinted := newModelsServer(t, "beta-model")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "beta-model", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: first.URL, Priority: 1},
		{ID: "ollama", Kind: backend.KindLocalHTTP, BaseURL: hinted.URL, Priority: 2},
	})

	svc := newTestService(registry, DefaultOptions())
	_, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "ollama",
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(fakeLocal.calls) != 1 {
		t.Fatalf("local adapter called %d times, want 1", len(fakeLocal.calls))
	}

	call := fakeLocal.calls[0]
	if call.ServerHint != hinted.URL {
		t.Errorf("server hint = %q, want the preferred candidate's URL", call.ServerHint)
	}
	if call.Model != "beta-model" {
		t.Errorf("call model = %q, want the hinted server's loaded model", call.Model)
	}
	if len(call.Endpoints) != 2 {
		t.Errorf("call endpoints = %v, want both online servers", call.Endpoints)
	}
}

func TestGenerateNoBackendsConfigured(t *testing.T) {
	svc := newTestService(backend.NewRegistry(), DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{UserPrompt: "Plan a todo app."})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if code := errorCode(t, err); code != errors.ErrCodeAllBackendsExhausted {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeAllBackendsExhausted)
	}
	if !strings.Contains(err.Error(), "no local inference backend configured") {
		t.Errorf("unexpected diagnostic: %v", err)
	}
	if resp == nil || len(resp.Trace) == 0 {
		t.Error("response should carry the trace even on error")
	}
}

func TestGenerateInvalidRequest(t *testing.T) {
	svc := newTestService(backend.NewRegistry(), DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{})

	if err == nil {
		t.Fatal("Generate() expected error, got nil")
	}
	if code := errorCode(t, err); code != errors.ErrCodeInvalidRequest {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeInvalidRequest)
	}
	if resp == nil {
		t.Fatal("response should be non-nil even for invalid requests")
	}
}

func TestGenerateConfiguredModelPin(t *testing.T) {
	fakeCloud := &fakeGenerator{id: "anthropic", scripted: []*backend.Result{
		succeedWith("anthropic", "claude-opus-4-1", planOutput),
		succeedWith("anthropic", "claude-haiku-4-5", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterProvider("anthropic", fakeCloud)
	registry.SetCandidates([]backend.Candidate{
		{ID: "anthropic", Kind: backend.KindCloudAPI, Provider: "anthropic", Model: "claude-opus-4-1", Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	if _, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "anthropic",
		APIKey:            "req-key",
	}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if fakeCloud.calls[0].Model != "claude-opus-4-1" {
		t.Errorf("call model = %q, want the configured pin", fakeCloud.calls[0].Model)
	}

	// A model named on the request beats the configured pin.
	if _, err := svc.Generate(context.Background(), &Request{
		UserPrompt:        "Plan a todo app.",
		PreferredProvider: "anthropic",
		APIKey:            "req-key",
		Model:             "claude-haiku-4-5",
	}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if fakeCloud.calls[1].Model != "claude-haiku-4-5" {
		t.Errorf("call model = %q, want the request's model", fakeCloud.calls[1].Model)
	}
}

func TestGenerateRequestIDPropagated(t *testing.T) {
	server := newModelsServer(t, "m")

	fakeLocal := &fakeGenerator{id: "local", scripted: []*backend.Result{
		succeedWith("local", "m", planOutput),
	}}

	registry := backend.NewRegistry()
	registry.RegisterGenerator(backend.KindLocalHTTP, fakeLocal)
	registry.SetCandidates([]backend.Candidate{
		{ID: "lmstudio", Kind: backend.KindLocalHTTP, BaseURL: server.URL, Priority: 1},
	})

	svc := newTestService(registry, DefaultOptions())
	resp, err := svc.Generate(context.Background(), &Request{
		RequestID:  "run-42",
		UserPrompt: "Plan a todo app.",
	})

	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.RequestID != "run-42" {
		t.Errorf("request id = %s, want run-42", resp.RequestID)
	}
	for _, e := range resp.Trace {
		if e.RequestID != "run-42" {
			t.Errorf("trace event %s has request id %s", e.Type, e.RequestID)
			break
		}
	}
}
