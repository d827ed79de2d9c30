// Package detect discovers generation backends usable on the host: local
// inference servers by their well-known ports, cloud providers by API key
// environment variables, and the agent CLI by PATH lookup. Detection is a
// cheap static check; the probe package decides actual availability at
// generation time.
package detect

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/credential"
)

// Well-known local inference server addresses.
const (
	LMStudioBaseURL = "http://localhost:1234"
	OllamaBaseURL   = "http://localhost:11434"
)

const dialTimeout = 500 * time.Millisecond

// Finding describes one backend the host could offer and whether it looks
// usable right now.
type Finding struct {
	ID        string       `json:"id"`
	Kind      backend.Kind `json:"kind"`
	Provider  string       `json:"provider,omitempty"`
	BaseURL   string       `json:"base_url,omitempty"`
	Command   string       `json:"command,omitempty"`
	EnvVar    string       `json:"env_var,omitempty"`
	Available bool         `json:"available"`
	Detail    string       `json:"detail,omitempty"`
}

// All runs every detection check in chain order: local servers first, then
// cloud providers, then the agent CLI.
func All() []Finding {
	return []Finding{
		LocalServer("lmstudio", LMStudioBaseURL),
		LocalServer("ollama", OllamaBaseURL),
		Cloud("anthropic"),
		Cloud("openai"),
		CLI("claude-cli", "claude"),
	}
}

// Available filters findings down to the usable ones.
func Available(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Available {
			out = append(out, f)
		}
	}
	return out
}

// LocalServer checks whether anything is listening on the server's port.
func LocalServer(id, baseURL string) Finding {
	f := Finding{ID: id, Kind: backend.KindLocalHTTP, BaseURL: baseURL}

	addr, err := dialAddr(baseURL)
	if err != nil {
		f.Detail = err.Error()
		return f
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		f.Detail = "nothing listening on " + addr
		return f
	}
	_ = conn.Close()

	f.Available = true
	f.Detail = "listening on " + addr
	return f
}

// Cloud checks whether the provider's API key environment variable is set.
// Stored and request-supplied keys are not consulted here, so an
// unavailable cloud finding only means no ambient key.
func Cloud(provider string) Finding {
	envVar := credential.EnvVar(provider)
	f := Finding{
		ID:       provider,
		Kind:     backend.KindCloudAPI,
		Provider: provider,
		EnvVar:   envVar,
	}

	if strings.TrimSpace(os.Getenv(envVar)) != "" {
		f.Available = true
		f.Detail = envVar + " is set"
		return f
	}
	f.Detail = envVar + " is not set"
	return f
}

// CLI checks whether the agent command is on PATH.
func CLI(id, command string) Finding {
	f := Finding{ID: id, Kind: backend.KindCLISubprocess, Command: command}

	path, err := exec.LookPath(command)
	if err != nil {
		f.Detail = command + " not found on PATH"
		return f
	}

	f.Available = true
	f.Detail = path
	return f
}

// dialAddr extracts the host:port a detection dial should target.
func dialAddr(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}
