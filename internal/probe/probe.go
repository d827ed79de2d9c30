// Package probe checks which local inference servers are reachable before
// an orchestration run. Probing annotates candidates with availability and
// the loaded model, it never removes one from the set.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/plansmith/plansmith/internal/backend"
)

const defaultTimeout = 2 * time.Second

// Outcome records one candidate's probe result, for trace events.
type Outcome struct {
	CandidateID string        `json:"candidate_id"`
	BaseURL     string        `json:"base_url"`
	Online      bool          `json:"online"`
	LoadedModel string        `json:"loaded_model,omitempty"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
}

// Prober checks local HTTP candidates via the models listing endpoint.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// NewProber creates a prober with the given per-target timeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Prober{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Probe checks every local-http candidate in parallel and annotates the
// slice in place. Each target gets its own timeout derived from ctx, so a
// stalled server cannot delay the others. Non-local candidates keep their
// availability untouched. One attempt per target, no retries.
func (p *Prober) Probe(ctx context.Context, candidates []backend.Candidate) []Outcome {
	outcomes := make([]Outcome, len(candidates))

	var wg sync.WaitGroup
	for i := range candidates {
		c := &candidates[i]
		outcomes[i] = Outcome{CandidateID: c.ID, BaseURL: c.BaseURL}
		if c.Kind != backend.KindLocalHTTP {
			continue
		}

		wg.Add(1)
		go func(c *backend.Candidate, out *Outcome) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			start := time.Now()
			model, err := p.listModels(probeCtx, c.BaseURL)
			out.Latency = time.Since(start)

			if err != nil {
				c.Availability = backend.AvailabilityOffline
				out.Error = err.Error()
				return
			}
			c.Availability = backend.AvailabilityOnline
			c.LoadedModel = model
			out.Online = true
			out.LoadedModel = model
		}(c, &outcomes[i])
	}
	wg.Wait()

	return outcomes
}

// listModels fetches the OpenAI-compatible model listing and returns the
// first model id, which is the loaded model on LM Studio and Ollama.
func (p *Prober) listModels(ctx context.Context, baseURL string) (string, error) {
	endpoint := backend.NormalizeBaseURL(baseURL)
	if endpoint == "" {
		return "", fmt.Errorf("no base URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/models", nil)
	if err != nil {
		return "", fmt.Errorf("create probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("probe returned status %d", resp.StatusCode)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return "", fmt.Errorf("decode model listing: %w", err)
	}
	if len(listing.Data) == 0 {
		return "", nil
	}
	return listing.Data[0].ID, nil
}
