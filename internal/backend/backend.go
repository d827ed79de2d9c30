// Package backend defines the generation backends and the transports that
// speak to them. Every transport normalizes its failures into the Result it
// returns; generation never raises.
package backend

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/plansmith/plansmith/internal/errors"
)

// Kind tags the transport family of a candidate backend.
type Kind string

const (
	KindLocalHTTP     Kind = "local-http"
	KindCloudAPI      Kind = "cloud-api"
	KindCLISubprocess Kind = "cli-subprocess"
)

// Availability is the probe's verdict on a candidate. Probing annotates,
// it never removes a candidate from the set.
type Availability string

const (
	AvailabilityUnknown Availability = "unknown"
	AvailabilityOnline  Availability = "online"
	AvailabilityOffline Availability = "offline"
)

// Candidate describes one configured backend. Each orchestration call works
// on its own copy, so probe annotations never leak between requests.
type Candidate struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Provider string `json:"provider,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	Priority int    `json:"priority"`

	// Model pins the model this candidate should use when the request
	// names none.
	Model string `json:"model,omitempty"`

	Availability Availability `json:"availability"`
	LoadedModel  string       `json:"loaded_model,omitempty"`
}

// Request carries one generation attempt to a transport. Fields a given
// transport kind does not understand are ignored by it.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int

	// APIKey authenticates cloud transports. The orchestrator resolves it
	// through the credential chain before the call.
	APIKey string

	// Endpoints lists the local servers to try, in priority order.
	// ServerHint optionally names the endpoint to move to the front.
	Endpoints  []string
	ServerHint string
}

// Failure classifies a failed generation attempt.
type Failure struct {
	Reason string           `json:"reason"`
	Code   errors.ErrorCode `json:"code"`
}

// Result is the outcome of one generation attempt. Exactly one of Content
// or Failure is meaningful; OK distinguishes them.
type Result struct {
	BackendID string        `json:"backend_id"`
	Endpoint  string        `json:"endpoint,omitempty"`
	ModelID   string        `json:"model_id,omitempty"`
	Content   string        `json:"content,omitempty"`
	Duration  time.Duration `json:"duration"`
	Failure   *Failure      `json:"failure,omitempty"`
}

// OK reports whether the attempt produced usable output.
func (r *Result) OK() bool {
	return r != nil && r.Failure == nil
}

// Success builds a successful result.
func Success(backendID, modelID, content string, elapsed time.Duration) *Result {
	return &Result{
		BackendID: backendID,
		ModelID:   modelID,
		Content:   content,
		Duration:  elapsed,
	}
}

// Fail builds a failed result.
func Fail(backendID string, code errors.ErrorCode, reason string, elapsed time.Duration) *Result {
	return &Result{
		BackendID: backendID,
		Duration:  elapsed,
		Failure:   &Failure{Reason: reason, Code: code},
	}
}

// Generator is implemented once per transport kind. Generate is total:
// timeouts, network errors, non-2xx responses, and subprocess failures all
// come back inside the Result, never as a raised error.
type Generator interface {
	Generate(ctx context.Context, req *Request) *Result
}

// classify maps a transport error to the failure taxonomy. Deadline and
// net timeouts become Timeout, everything else TransportFailure.
func classify(err error) errors.ErrorCode {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrCodeTransportTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrCodeTransportTimeout
	}
	return errors.ErrCodeTransportFailure
}
