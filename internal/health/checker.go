// Package health aggregates the dependency checks behind the service's
// health probes. A Checker verifies one dependency (the generation
// backends, the credential store) and reports a Result; the Manager fans
// the checks out in parallel and folds their statuses into the single
// answer the liveness and readiness endpoints return.
package health

import (
	"context"
	"time"
)

// Status is the outcome class of a health check.
type Status string

const (
	// StatusHealthy means the dependency is fully usable.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the dependency is impaired but the service
	// can still do useful work, possibly through a fallback.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means the dependency is unusable.
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is what a single check reports.
type Result struct {
	Status Status `json:"status"`

	// Message is a one-line summary for operators.
	Message string `json:"message,omitempty"`

	// Details carries structured extras: per-backend availability, store
	// paths, error strings.
	Details map[string]interface{} `json:"details,omitempty"`

	// Latency is how long the check took.
	Latency time.Duration `json:"latency,omitempty"`
}

// Checker verifies one dependency. Implementations respect the context
// deadline; the Manager bounds every check with its own timeout.
type Checker interface {
	// Name identifies the check in probe output, lowercase with hyphens.
	Name() string

	Check(ctx context.Context) *Result
}

// NewResult creates a result with an empty details map ready for
// WithDetail.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithDetail attaches one detail and returns the result for chaining.
func (r *Result) WithDetail(key string, value interface{}) *Result {
	r.Details[key] = value
	return r
}

// WithLatency records how long the check took.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

// Healthy reports a fully usable dependency.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded reports an impaired dependency the service can work around.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy reports an unusable dependency.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
