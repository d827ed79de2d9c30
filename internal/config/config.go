// Package config loads, validates, and materializes the plansmith
// configuration file. A missing file is not an error: defaults plus host
// discovery produce a working local-first setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/detect"
	"github.com/plansmith/plansmith/internal/errors"
)

// DefaultFileName is the file LoadOrDiscover looks for inside the
// plansmith config directory.
const DefaultFileName = "config.yaml"

// Config is the root of the config.yaml file.
type Config struct {
	Backends    []Backend   `yaml:"backends"`
	Strategy    Strategy    `yaml:"strategy,omitempty"`
	Probe       Probe       `yaml:"probe,omitempty"`
	Timeouts    Timeouts    `yaml:"timeouts,omitempty"`
	Server      Server      `yaml:"server,omitempty"`
	Credentials Credentials `yaml:"credentials,omitempty"`
	Logging     Logging     `yaml:"logging,omitempty"`
}

// Backend configures one generation backend candidate.
type Backend struct {
	ID       string   `yaml:"id"`
	Kind     string   `yaml:"kind"`
	Provider string   `yaml:"provider,omitempty"`
	BaseURL  string   `yaml:"base_url,omitempty"`
	Model    string   `yaml:"model,omitempty"`
	Command  string   `yaml:"command,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	Priority int      `yaml:"priority,omitempty"`
}

// Strategy holds the fallback chain policy knobs.
type Strategy struct {
	Preference   []string     `yaml:"preference,omitempty"`
	Retry        Retry        `yaml:"retry,omitempty"`
	PaidFallback PaidFallback `yaml:"paid_fallback,omitempty"`
}

// Retry bounds the simplified-prompt retry step. Callers still opt in per
// request; this section caps what opting in buys.
type Retry struct {
	Enabled     bool    `yaml:"enabled"`
	MaxAttempts int     `yaml:"max_attempts,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// PaidFallback configures the opt-in terminal cloud step.
type PaidFallback struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
}

// Probe bounds the pre-flight availability checks.
type Probe struct {
	TimeoutMs int `yaml:"timeout_ms,omitempty"`
}

// Timeout returns the probe timeout as a duration.
func (p Probe) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Timeouts bounds individual adapter calls per transport kind.
type Timeouts struct {
	LocalSeconds int `yaml:"local_seconds,omitempty"`
	CloudSeconds int `yaml:"cloud_seconds,omitempty"`
	CLISeconds   int `yaml:"cli_seconds,omitempty"`
}

// Local returns the per-call timeout for local inference servers.
func (t Timeouts) Local() time.Duration {
	return time.Duration(t.LocalSeconds) * time.Second
}

// Cloud returns the per-call timeout for cloud providers.
func (t Timeouts) Cloud() time.Duration {
	return time.Duration(t.CloudSeconds) * time.Second
}

// CLI returns the per-call timeout for the agent CLI subprocess.
func (t Timeouts) CLI() time.Duration {
	return time.Duration(t.CLISeconds) * time.Second
}

// Server configures the HTTP service.
type Server struct {
	Addr                 string `yaml:"addr,omitempty"`
	ShutdownGraceSeconds int    `yaml:"shutdown_grace_seconds,omitempty"`
}

// ShutdownGrace returns how long in-flight requests get to finish.
func (s Server) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSeconds) * time.Second
}

// Credentials points at the encrypted key store. An empty path means the
// store's default location under the user's home directory.
type Credentials struct {
	Path string `yaml:"path,omitempty"`
}

// Logging configures the structured logger.
type Logging struct {
	Level     string `yaml:"level,omitempty"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// DefaultConfig returns the stock local-first setup: both well-known local
// servers, both cloud providers, and the agent CLI. Reachability and
// credentials are decided at run time, not here.
func DefaultConfig() *Config {
	return &Config{
		Backends: []Backend{
			{ID: "lmstudio", Kind: string(backend.KindLocalHTTP), BaseURL: detect.LMStudioBaseURL, Priority: 1},
			{ID: "ollama", Kind: string(backend.KindLocalHTTP), BaseURL: detect.OllamaBaseURL, Priority: 2},
			{ID: "anthropic", Kind: string(backend.KindCloudAPI), Provider: "anthropic", Priority: 3},
			{ID: "openai", Kind: string(backend.KindCloudAPI), Provider: "openai", Priority: 4},
			{ID: "claude-cli", Kind: string(backend.KindCLISubprocess), Command: "claude", Priority: 5},
		},
		Strategy: Strategy{
			Retry:        Retry{Enabled: true, MaxAttempts: 1, Temperature: 0.3},
			PaidFallback: PaidFallback{Enabled: true, Provider: "anthropic"},
		},
		Probe:    Probe{TimeoutMs: 2000},
		Timeouts: Timeouts{LocalSeconds: 120, CloudSeconds: 120, CLISeconds: 180},
		Server:   Server{Addr: ":8080", ShutdownGraceSeconds: 10},
		Logging:  Logging{Level: "info", Format: "text"},
	}
}

// Discover builds a configuration from what the host offers. Local servers
// are always listed since the run-time probe is authoritative for them;
// cloud and CLI backends are included only when actually detected.
func Discover() *Config {
	cfg := DefaultConfig()

	var backends []Backend
	for _, f := range detect.All() {
		switch f.Kind {
		case backend.KindLocalHTTP:
			backends = append(backends, Backend{ID: f.ID, Kind: string(f.Kind), BaseURL: f.BaseURL})
		case backend.KindCloudAPI:
			if f.Available {
				backends = append(backends, Backend{ID: f.ID, Kind: string(f.Kind), Provider: f.Provider})
			}
		case backend.KindCLISubprocess:
			if f.Available {
				backends = append(backends, Backend{ID: f.ID, Kind: string(f.Kind), Command: f.Command})
			}
		}
	}
	for i := range backends {
		backends[i].Priority = i + 1
	}
	cfg.Backends = backends
	return cfg
}

// Load reads and validates a configuration file. Environment variable
// references in the file are expanded before parsing, and unset numeric
// fields are filled with the defaults so a partial file stays usable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("config file not found: %s", path))
		}
		return nil, errors.Wrap(errors.ErrCodeConfigNotFound, fmt.Sprintf("read config file: %s", path), err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigUnmarshal, fmt.Sprintf("parse config file: %s", path), err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDiscover loads the file at path when it exists and otherwise falls
// back to host discovery. An empty path skips straight to discovery.
func LoadOrDiscover(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Discover(), nil
}

// Save writes the configuration, creating the parent directory.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// DefaultPath returns ~/.plansmith/config.yaml without creating anything.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".plansmith", DefaultFileName), nil
}

// normalize fills unset fields with the default values.
func (c *Config) normalize() {
	def := DefaultConfig()

	if c.Strategy.Retry.MaxAttempts <= 0 {
		c.Strategy.Retry.MaxAttempts = def.Strategy.Retry.MaxAttempts
	}
	if c.Strategy.Retry.Temperature <= 0 {
		c.Strategy.Retry.Temperature = def.Strategy.Retry.Temperature
	}
	if c.Strategy.PaidFallback.Provider == "" {
		c.Strategy.PaidFallback.Provider = def.Strategy.PaidFallback.Provider
	}
	if c.Probe.TimeoutMs <= 0 {
		c.Probe.TimeoutMs = def.Probe.TimeoutMs
	}
	if c.Timeouts.LocalSeconds <= 0 {
		c.Timeouts.LocalSeconds = def.Timeouts.LocalSeconds
	}
	if c.Timeouts.CloudSeconds <= 0 {
		c.Timeouts.CloudSeconds = def.Timeouts.CloudSeconds
	}
	if c.Timeouts.CLISeconds <= 0 {
		c.Timeouts.CLISeconds = def.Timeouts.CLISeconds
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ShutdownGraceSeconds <= 0 {
		c.Server.ShutdownGraceSeconds = def.Server.ShutdownGraceSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	for i := range c.Backends {
		if c.Backends[i].Priority == 0 {
			c.Backends[i].Priority = i + 1
		}
	}
}

// Validate checks structural and semantic constraints.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.NewConfigInvalidError("no backends configured")
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if err := b.validate(); err != nil {
			return errors.NewConfigInvalidError(fmt.Sprintf("backend %d (%s): %v", i, b.ID, err))
		}
		id := strings.ToLower(b.ID)
		if seen[id] {
			return errors.NewConfigInvalidError(fmt.Sprintf("duplicate backend id: %s", b.ID))
		}
		seen[id] = true
	}

	if temp := c.Strategy.Retry.Temperature; temp < 0 || temp > 2 {
		return errors.NewConfigInvalidError("retry temperature must be between 0 and 2")
	}
	if c.Strategy.PaidFallback.Enabled {
		switch strings.ToLower(c.Strategy.PaidFallback.Provider) {
		case "anthropic", "openai":
		default:
			return errors.NewConfigInvalidError(fmt.Sprintf("unsupported paid fallback provider: %s", c.Strategy.PaidFallback.Provider))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("unknown log level: %s", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("unknown log format: %s", c.Logging.Format))
	}
	return nil
}

func (b Backend) validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("id is required")
	}
	switch backend.Kind(b.Kind) {
	case backend.KindLocalHTTP:
		if b.BaseURL == "" {
			return fmt.Errorf("local backends require base_url")
		}
	case backend.KindCloudAPI:
		switch strings.ToLower(b.Provider) {
		case "anthropic", "openai":
		case "":
			return fmt.Errorf("cloud backends require provider")
		default:
			return fmt.Errorf("unsupported cloud provider: %s", b.Provider)
		}
	case backend.KindCLISubprocess:
		if b.Command == "" {
			return fmt.Errorf("cli backends require command")
		}
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unknown backend kind: %s (must be %s, %s, or %s)",
			b.Kind, backend.KindLocalHTTP, backend.KindCloudAPI, backend.KindCLISubprocess)
	}
	if b.Priority < 0 {
		return fmt.Errorf("priority must be non-negative")
	}
	return nil
}
