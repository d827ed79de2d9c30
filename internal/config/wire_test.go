package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/log"
)

func TestCandidates(t *testing.T) {
	cfg := &Config{
		Backends: []Backend{
			{ID: "lmstudio", Kind: string(backend.KindLocalHTTP), BaseURL: "http://localhost:1234", Priority: 1},
			{ID: "anthropic", Kind: string(backend.KindCloudAPI), Provider: "Anthropic", Model: "claude-opus-4-1", Priority: 2},
		},
	}

	got := cfg.Candidates()
	require.Len(t, got, 2)
	assert.Equal(t, backend.KindLocalHTTP, got[0].Kind)
	assert.Equal(t, "http://localhost:1234", got[0].BaseURL)
	assert.Equal(t, "anthropic", got[1].Provider, "provider should be lowercased")
	assert.Equal(t, "claude-opus-4-1", got[1].Model)
}

func TestCandidatesPreferenceOrder(t *testing.T) {
	cfg := &Config{
		Backends: []Backend{
			{ID: "lmstudio", Kind: string(backend.KindLocalHTTP), BaseURL: "http://localhost:1234", Priority: 1},
			{ID: "ollama", Kind: string(backend.KindLocalHTTP), BaseURL: "http://localhost:11434", Priority: 2},
			{ID: "anthropic", Kind: string(backend.KindCloudAPI), Provider: "anthropic", Priority: 3},
		},
		Strategy: Strategy{Preference: []string{"Ollama"}},
	}

	got := cfg.Candidates()
	require.Len(t, got, 3)

	byID := make(map[string]int, len(got))
	for _, c := range got {
		byID[c.ID] = c.Priority
	}
	assert.Equal(t, 1, byID["ollama"], "preferred id should move to the front")
	assert.Greater(t, byID["lmstudio"], byID["ollama"])
	assert.Greater(t, byID["anthropic"], byID["lmstudio"])
}

func TestCandidatesFillMissingPriority(t *testing.T) {
	cfg := &Config{
		Backends: []Backend{
			{ID: "a", Kind: string(backend.KindLocalHTTP), BaseURL: "http://localhost:1"},
			{ID: "b", Kind: string(backend.KindLocalHTTP), BaseURL: "http://localhost:2"},
		},
	}

	got := cfg.Candidates()
	assert.Equal(t, 1, got[0].Priority)
	assert.Equal(t, 2, got[1].Priority)
}

func TestRegistryWiring(t *testing.T) {
	reg := DefaultConfig().Registry()

	_, err := reg.Generator(backend.KindLocalHTTP)
	require.NoError(t, err)
	_, err = reg.Generator(backend.KindCLISubprocess)
	require.NoError(t, err)
	_, err = reg.ProviderGenerator("anthropic")
	require.NoError(t, err)
	_, err = reg.ProviderGenerator("openai")
	require.NoError(t, err)

	candidates := reg.Candidates()
	require.Len(t, candidates, 5)
	assert.Equal(t, "lmstudio", candidates[0].ID, "candidates should come back in priority order")
}

func TestRegistryWiringWithoutCloudEntries(t *testing.T) {
	// Providers register even when no cloud backend is configured, so an
	// explicit preference can still reach them.
	cfg := &Config{
		Backends: []Backend{
			{ID: "lmstudio", Kind: string(backend.KindLocalHTTP), BaseURL: "http://localhost:1234"},
		},
	}

	reg := cfg.Registry()
	_, err := reg.ProviderGenerator("anthropic")
	require.NoError(t, err)
	_, err = reg.ProviderGenerator("openai")
	require.NoError(t, err)
	require.Len(t, reg.Candidates(), 1)
}

func TestOrchestratorOptions(t *testing.T) {
	cfg := &Config{
		Strategy: Strategy{
			Retry:        Retry{Enabled: true, MaxAttempts: 3, Temperature: 0.7},
			PaidFallback: PaidFallback{Enabled: true, Provider: "openai"},
		},
	}

	opts := cfg.OrchestratorOptions()
	assert.True(t, opts.Retry.Enabled)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.Equal(t, 0.7, opts.Retry.Temperature)
	assert.True(t, opts.PaidFallback.Enabled)
	assert.Equal(t, "openai", opts.PaidFallback.Provider)
}

func TestLogConfig(t *testing.T) {
	cfg := &Config{Logging: Logging{Level: "debug", Format: "json", AddSource: true}}

	lc := cfg.LogConfig()
	assert.Equal(t, log.LevelDebug, lc.Level)
	assert.Equal(t, log.FormatJSON, lc.Format)
	assert.True(t, lc.AddSource)
}
