package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/plansmith/plansmith/internal/errors"
)

// CLI shells out to an agent command line tool and reads the response from
// stdout. Agent CLIs in JSON mode emit a {"result": "..."} envelope; tools
// that print plain text pass through untouched. Subprocess calls get a
// longer timeout than HTTP transports since agent CLIs spin up a full
// session per invocation.
type CLI struct {
	id      string
	command string
	args    []string
	timeout time.Duration
}

// NewCLI creates the subprocess transport. Zero values select the claude
// CLI in JSON output mode with a 180 second timeout.
func NewCLI(id, command string, args []string, timeout time.Duration) *CLI {
	if id == "" {
		id = "claude-cli"
	}
	if command == "" {
		command = "claude"
		if len(args) == 0 {
			args = []string{"--print", "--output-format", "json"}
		}
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &CLI{id: id, command: command, args: args, timeout: timeout}
}

// Generate implements Generator for the cli-subprocess kind. The prompt is
// written to the tool's stdin.
func (c *CLI) Generate(ctx context.Context, req *Request) *Result {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}

	cmd := exec.CommandContext(runCtx, c.command, c.args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Fail(c.id, errors.ErrCodeTransportTimeout, fmt.Sprintf("%s timed out after %s", c.command, c.timeout), time.Since(start))
		}
		reason := fmt.Sprintf("%s failed: %v", c.command, err)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			reason = fmt.Sprintf("%s failed: %s", c.command, msg)
		}
		return Fail(c.id, errors.ErrCodeTransportFailure, reason, time.Since(start))
	}

	content := unwrapCLIOutput(stdout.String())
	if strings.TrimSpace(content) == "" {
		return Fail(c.id, errors.ErrCodeTransportFailure, fmt.Sprintf("%s produced no output", c.command), time.Since(start))
	}

	return Success(c.id, req.Model, content, time.Since(start))
}

// unwrapCLIOutput extracts the result field from a JSON envelope. Output
// that is not such an envelope is the content itself.
func unwrapCLIOutput(out string) string {
	trimmed := strings.TrimSpace(out)
	var envelope struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Result != "" {
		return envelope.Result
	}
	return trimmed
}
