package backend

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/plansmith/plansmith/internal/errors"
)

func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestCLIGeneratePlainOutput(t *testing.T) {
	cat := requireTool(t, "cat")

	gen := NewCLI("cat-cli", cat, nil, time.Minute)
	res := gen.Generate(context.Background(), &Request{
		SystemPrompt: "You are a planner.",
		UserPrompt:   "Plan a todo app.",
		Model:        "sonnet",
	})

	if !res.OK() {
		t.Fatalf("Generate() failed: %+v", res.Failure)
	}
	if res.Content != "You are a planner.\n\nPlan a todo app." {
		t.Errorf("unexpected content: %q", res.Content)
	}
	if res.BackendID != "cat-cli" {
		t.Errorf("unexpected backend id: %s", res.BackendID)
	}
	if res.ModelID != "sonnet" {
		t.Errorf("unexpected model: %s", res.ModelID)
	}
}

func TestCLIGenerateJSONEnvelope(t *testing.T) {
	sh := requireTool(t, "sh")

	gen := NewCLI("", sh, []string{"-c", `echo '{"result": "plan text", "is_error": false}'`}, time.Minute)
	res := gen.Generate(context.Background(), &Request{UserPrompt: "hello"})

	if !res.OK() {
		t.Fatalf("Generate() failed: %+v", res.Failure)
	}
	if res.Content != "plan text" {
		t.Errorf("envelope not unwrapped, got %q", res.Content)
	}
}

func TestCLIGenerateFailure(t *testing.T) {
	sh := requireTool(t, "sh")

	gen := NewCLI("", sh, []string{"-c", "echo boom >&2; exit 3"}, time.Minute)
	res := gen.Generate(context.Background(), &Request{UserPrompt: "hello"})

	if res.OK() {
		t.Fatal("Generate() succeeded on a failing command")
	}
	if res.Failure.Code != errors.ErrCodeTransportFailure {
		t.Errorf("unexpected failure code: %s", res.Failure.Code)
	}
	if !strings.Contains(res.Failure.Reason, "boom") {
		t.Errorf("reason should carry stderr, got: %s", res.Failure.Reason)
	}
}

func TestCLIGenerateTimeout(t *testing.T) {
	sleep := requireTool(t, "sleep")

	gen := NewCLI("", sleep, []string{"5"}, 50*time.Millisecond)
	res := gen.Generate(context.Background(), &Request{UserPrompt: "hello"})

	if res.OK() {
		t.Fatal("Generate() succeeded past the timeout")
	}
	if res.Failure.Code != errors.ErrCodeTransportTimeout {
		t.Errorf("unexpected failure code: %s", res.Failure.Code)
	}
	if !strings.Contains(res.Failure.Reason, "timed out") {
		t.Errorf("unexpected reason: %s", res.Failure.Reason)
	}
}

func TestCLIGenerateEmptyOutput(t *testing.T) {
	tru := requireTool(t, "true")

	gen := NewCLI("", tru, nil, time.Minute)
	res := gen.Generate(context.Background(), &Request{UserPrompt: "hello"})

	if res.OK() {
		t.Fatal("Generate() succeeded with no output")
	}
	if !strings.Contains(res.Failure.Reason, "produced no output") {
		t.Errorf("unexpected reason: %s", res.Failure.Reason)
	}
}

func TestUnwrapCLIOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "json envelope",
			in:   `{"result": "the plan", "session_id": "abc"}`,
			want: "the plan",
		},
		{
			name: "plain text passes through",
			in:   "just some text\n",
			want: "just some text",
		},
		{
			name: "invalid json passes through",
			in:   `{"result": truncated`,
			want: `{"result": truncated`,
		},
		{
			name: "envelope with empty result passes through",
			in:   `{"result": ""}`,
			want: `{"result": ""}`,
		},
		{
			name: "json without result field passes through",
			in:   `{"phases": []}`,
			want: `{"phases": []}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unwrapCLIOutput(tt.in); got != tt.want {
				t.Errorf("unwrapCLIOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCLIDefaults(t *testing.T) {
	gen := NewCLI("", "", nil, 0)

	if gen.id != "claude-cli" {
		t.Errorf("unexpected id: %s", gen.id)
	}
	if gen.command != "claude" {
		t.Errorf("unexpected command: %s", gen.command)
	}
	if len(gen.args) != 3 || gen.args[0] != "--print" {
		t.Errorf("unexpected args: %v", gen.args)
	}
	if gen.timeout != 180*time.Second {
		t.Errorf("unexpected timeout: %s", gen.timeout)
	}
}
