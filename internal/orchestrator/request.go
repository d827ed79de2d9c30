package orchestrator

import (
	"strings"
	"time"

	"github.com/plansmith/plansmith/internal/backend"
	"github.com/plansmith/plansmith/internal/buildplan"
	"github.com/plansmith/plansmith/internal/errors"
	"github.com/plansmith/plansmith/internal/extract"
	"github.com/plansmith/plansmith/internal/reconcile"
	"github.com/plansmith/plansmith/internal/trace"
)

// Request is the single inbound payload of an orchestration run. One Request
// produces one plan or one terminal error; requests are never reused.
type Request struct {
	// RequestID correlates trace events. Generated when empty.
	RequestID string `json:"request_id,omitempty"`

	SystemPrompt string `json:"system_prompt,omitempty"`
	UserPrompt   string `json:"user_prompt"`

	// SimplifiedPrompt is the reduced variant used by the retry step. When
	// empty, a JSON-only directive is prepended to the user prompt instead.
	SimplifiedPrompt string `json:"simplified_prompt,omitempty"`

	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// PreferredProvider names an explicit backend choice: a candidate id,
	// a cloud provider name, or a local server to hint at. Empty selects
	// the default local-first chain.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// APIKey is the request-supplied credential for the preferred provider.
	APIKey string `json:"api_key,omitempty"`

	// ExistingPackets is the caller's read-only snapshot of already tracked
	// packets; the merged plan never loses any of their ids.
	ExistingPackets []buildplan.ExistingPacket `json:"existing_packets,omitempty"`

	AllowPaidFallback bool `json:"allow_paid_fallback,omitempty"`
	UseRetry          bool `json:"use_retry,omitempty"`
}

// Validate checks the request before a run starts.
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.UserPrompt) == "" {
		return errors.New(errors.ErrCodeInvalidRequest, "user prompt must not be empty")
	}
	return nil
}

// Response is the outcome envelope of one orchestration run. It is non-nil
// even when Generate returns an error, so the attempt trace survives
// terminal failures; Plan is nil exactly when the run failed.
type Response struct {
	RequestID string `json:"request_id"`

	Plan  *buildplan.BuildPlan `json:"plan,omitempty"`
	Stats reconcile.MergeStats `json:"stats"`

	// BackendUsed and ModelUsed describe what actually served the request;
	// RequestedModel keeps the caller's original ask so substitutions stay
	// visible.
	BackendUsed    string `json:"backend_used,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	ModelUsed      string `json:"model_used,omitempty"`
	RequestedModel string `json:"requested_model,omitempty"`

	// Fingerprint is the canonical content hash of the merged plan.
	Fingerprint string `json:"fingerprint,omitempty"`

	Extraction extract.Details   `json:"extraction"`
	Attempts   []*backend.Result `json:"attempts,omitempty"`
	Trace      []trace.Event     `json:"trace,omitempty"`

	Duration time.Duration `json:"duration"`
}
