package config

import (
	"strings"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/log"
	"github.com/plansmith/plansmith/internal/orchestrator"
)

// Candidates converts the configured backends into registry candidates.
// Ids named in strategy.preference come first in that order; the rest keep
// their configured priority, shifted behind the preferred block.
func (c *Config) Candidates() []backend.Candidate {
	rank := make(map[string]int, len(c.Strategy.Preference))
	for i, id := range c.Strategy.Preference {
		key := strings.ToLower(strings.TrimSpace(id))
		if key == "" {
			continue
		}
		if _, ok := rank[key]; !ok {
			rank[key] = i + 1
		}
	}

	out := make([]backend.Candidate, 0, len(c.Backends))
	for i, b := range c.Backends {
		priority := b.Priority
		if priority <= 0 {
			priority = i + 1
		}
		if r, ok := rank[strings.ToLower(b.ID)]; ok {
			priority = r
		} else {
			priority += len(rank)
		}
		out = append(out, backend.Candidate{
			ID:       b.ID,
			Kind:     backend.Kind(b.Kind),
			Provider: strings.ToLower(b.Provider),
			BaseURL:  b.BaseURL,
			Model:    b.Model,
			Priority: priority,
		})
	}
	return out
}

// Registry builds the transport registry for this configuration. All four
// transports always register, so an explicit preference can target a
// provider that has no configured candidate; the candidate set decides
// what the default chain reaches.
func (c *Config) Registry() *backend.Registry {
	anthropicURL := ""
	openaiURL := ""
	cliID, cliCommand := "", ""
	var cliArgs []string
	for _, b := range c.Backends {
		switch backend.Kind(b.Kind) {
		case backend.KindCloudAPI:
			switch strings.ToLower(b.Provider) {
			case "anthropic":
				anthropicURL = b.BaseURL
			case "openai":
				openaiURL = b.BaseURL
			}
		case backend.KindCLISubprocess:
			if cliCommand == "" {
				cliID, cliCommand, cliArgs = b.ID, b.Command, b.Args
			}
		}
	}

	reg := backend.NewRegistry()
	reg.RegisterGenerator(backend.KindLocalHTTP, backend.NewLocalHTTP(c.Timeouts.Local()))
	reg.RegisterGenerator(backend.KindCLISubprocess, backend.NewCLI(cliID, cliCommand, cliArgs, c.Timeouts.CLI()))
	reg.RegisterProvider("anthropic", backend.NewAnthropic(anthropicURL, c.Timeouts.Cloud()))
	reg.RegisterProvider("openai", backend.NewOpenAI(openaiURL, c.Timeouts.Cloud()))
	reg.SetCandidates(c.Candidates())
	return reg
}

// OrchestratorOptions maps the strategy section onto orchestration policy.
func (c *Config) OrchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		Retry: orchestrator.RetryOptions{
			Enabled:     c.Strategy.Retry.Enabled,
			MaxAttempts: c.Strategy.Retry.MaxAttempts,
			Temperature: c.Strategy.Retry.Temperature,
		},
		PaidFallback: orchestrator.PaidFallbackOptions{
			Enabled:  c.Strategy.PaidFallback.Enabled,
			Provider: c.Strategy.PaidFallback.Provider,
		},
	}
}

// LogConfig maps the logging section onto the logger configuration.
func (c *Config) LogConfig() log.Config {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(c.Logging.Level)
	lc.Format = log.ParseFormat(c.Logging.Format)
	lc.AddSource = c.Logging.AddSource
	return lc
}
