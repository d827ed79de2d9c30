package trace

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of trace event
type EventType string

const (
	// EventTypeRunStart indicates an orchestration run started
	EventTypeRunStart EventType = "run_start"

	// EventTypeRunComplete indicates an orchestration run completed
	EventTypeRunComplete EventType = "run_complete"

	// EventTypeProbe indicates backend availability was probed
	EventTypeProbe EventType = "probe"

	// EventTypeCredential indicates a credential lookup was performed
	EventTypeCredential EventType = "credential_resolve"

	// EventTypeAttemptStart indicates a backend call started
	EventTypeAttemptStart EventType = "attempt_start"

	// EventTypeAttemptResult indicates a backend call finished
	EventTypeAttemptResult EventType = "attempt_result"

	// EventTypeExtract indicates raw output was run through the extractor
	EventTypeExtract EventType = "extract"

	// EventTypeRetry indicates the simplified-prompt retry fired
	EventTypeRetry EventType = "retry"

	// EventTypeFallback indicates the chain advanced to a fallback step
	EventTypeFallback EventType = "fallback"

	// EventTypeMerge indicates packet reconciliation ran
	EventTypeMerge EventType = "merge"

	// EventTypeError indicates an error occurred
	EventTypeError EventType = "error"
)

// Event represents a single trace event within one orchestration run
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	// Type is the event type
	Type EventType `json:"type"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// RequestID identifies the orchestration run this event belongs to
	RequestID string `json:"request_id"`

	// BackendID identifies the backend involved (if applicable)
	BackendID string `json:"backend_id,omitempty"`

	// Message is a human-readable description
	Message string `json:"message"`

	// Level indicates severity (info, warning, error)
	Level string `json:"level"`

	// Data contains event-specific structured data
	Data map[string]interface{} `json:"data,omitempty"`

	// Duration tracks how long an operation took (for start/result pairs)
	Duration *time.Duration `json:"duration,omitempty"`

	// Error contains error details if applicable
	Error string `json:"error,omitempty"`
}

// NewEvent creates a new trace event with common fields populated
func NewEvent(eventType EventType, requestID string, message string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Message:   message,
		Level:     inferLevel(eventType),
	}
}

// WithBackend sets the backend ID
func (e *Event) WithBackend(backendID string) *Event {
	e.BackendID = backendID
	return e
}

// WithData adds data to the event
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// WithError sets the error field
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Level = "error"
	}
	return e
}

// WithDuration sets the duration
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.Duration = &duration
	return e
}

// inferLevel infers the log level from event type
func inferLevel(eventType EventType) string {
	switch eventType {
	case EventTypeError:
		return "error"
	case EventTypeFallback, EventTypeRetry:
		return "warning"
	default:
		return "info"
	}
}
