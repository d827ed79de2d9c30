package client

import "time"

// GenerateRequest is the payload of POST /v1/plans/generate.
type GenerateRequest struct {
	// RequestID correlates trace events. Generated server-side when empty.
	RequestID string `json:"request_id,omitempty"`

	SystemPrompt string `json:"system_prompt,omitempty"`
	UserPrompt   string `json:"user_prompt"`

	// SimplifiedPrompt is the reduced variant used by the retry step.
	SimplifiedPrompt string `json:"simplified_prompt,omitempty"`

	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// PreferredProvider pins a backend id or cloud provider; empty selects
	// the default local-first chain.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// APIKey is a request-supplied credential for the preferred provider.
	APIKey string `json:"api_key,omitempty"`

	// ExistingPackets is a snapshot of already tracked packets; the merged
	// plan never loses any of their ids.
	ExistingPackets []ExistingPacket `json:"existing_packets,omitempty"`

	AllowPaidFallback bool `json:"allow_paid_fallback,omitempty"`
	UseRetry          bool `json:"use_retry,omitempty"`
}

// ExistingPacket is one previously tracked work packet.
type ExistingPacket struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	PhaseID     string   `json:"phase_id,omitempty"`
	Description string   `json:"description,omitempty"`
	Tasks       []string `json:"tasks,omitempty"`
}

// Phase is one ordered stage of a build plan.
type Phase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// WorkPacket is one unit of work inside a plan.
type WorkPacket struct {
	ID          string   `json:"id"`
	PhaseID     string   `json:"phase_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	Tasks       []string `json:"tasks,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`

	// Existing marks packets preserved from the caller's snapshot.
	Existing bool `json:"existing"`
}

// BuildPlan is a generated plan: ordered phases plus their work packets.
type BuildPlan struct {
	Title   string       `json:"title,omitempty"`
	Phases  []Phase      `json:"phases"`
	Packets []WorkPacket `json:"packets"`
}

// MergeStats summarizes how the generated plan and the existing snapshot
// were reconciled.
type MergeStats struct {
	Preserved int `json:"preserved"`
	Updated   int `json:"updated"`
	Added     int `json:"added"`
	Missing   int `json:"missing"`
}

// Extraction records which recovery steps ran while parsing model output.
type Extraction struct {
	FencesStripped bool   `json:"fences_stripped,omitempty"`
	Unwrapped      bool   `json:"unwrapped,omitempty"`
	AssignedIDs    int    `json:"assigned_ids,omitempty"`
	RepairedRefs   int    `json:"repaired_refs,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// AttemptFailure describes why one backend attempt failed.
type AttemptFailure struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// Attempt is one backend call made during the run.
type Attempt struct {
	BackendID string          `json:"backend_id"`
	Endpoint  string          `json:"endpoint,omitempty"`
	ModelID   string          `json:"model_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Failure   *AttemptFailure `json:"failure,omitempty"`
}

// TraceEvent is one entry of the run's decision trace.
type TraceEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id"`
	BackendID string                 `json:"backend_id,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Duration  *time.Duration         `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// GenerateResponse is the outcome envelope of one generation run. Plan is
// nil when the run failed; the attempt trace survives either way.
type GenerateResponse struct {
	RequestID string `json:"request_id"`

	Plan  *BuildPlan `json:"plan,omitempty"`
	Stats MergeStats `json:"stats"`

	BackendUsed    string `json:"backend_used,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	ModelUsed      string `json:"model_used,omitempty"`
	RequestedModel string `json:"requested_model,omitempty"`

	// Fingerprint is the canonical content hash of the merged plan.
	Fingerprint string `json:"fingerprint,omitempty"`

	Extraction Extraction   `json:"extraction"`
	Attempts   []Attempt    `json:"attempts,omitempty"`
	Trace      []TraceEvent `json:"trace,omitempty"`

	Duration time.Duration `json:"duration"`
}

// BackendRow is one backend's availability in the report.
type BackendRow struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LoadedModel string `json:"loaded_model,omitempty"`
	LatencyMs   int64  `json:"latency_ms,omitempty"`
}

// BackendsReport is the payload of GET /v1/backends.
type BackendsReport struct {
	Backends []BackendRow `json:"backends"`
}

// ProbeCheck is one named health check inside a probe result.
type ProbeCheck struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency,omitempty"`
}

// ProbeResult is the payload of the health probe endpoints.
type ProbeResult struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]*ProbeCheck `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Probe statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)
