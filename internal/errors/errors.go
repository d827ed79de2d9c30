package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Backend errors (BACKEND-001 to BACKEND-099)
	ErrCodeBackendNotFound    ErrorCode = "BACKEND-001"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND-002"
	ErrCodeBackendConfig      ErrorCode = "BACKEND-003"

	// Credential errors (CREDENTIAL-001 to CREDENTIAL-099)
	ErrCodeCredentialMissing ErrorCode = "CREDENTIAL-001"
	ErrCodeCredentialStore   ErrorCode = "CREDENTIAL-002"

	// Transport errors (TRANSPORT-001 to TRANSPORT-099)
	ErrCodeTransportFailure ErrorCode = "TRANSPORT-001"
	ErrCodeTransportTimeout ErrorCode = "TRANSPORT-002"

	// Extraction errors (EXTRACT-001 to EXTRACT-099)
	ErrCodeUnparseableOutput ErrorCode = "EXTRACT-001"
	ErrCodePlanInvalid       ErrorCode = "EXTRACT-002"

	// Orchestration errors (ORCH-001 to ORCH-099)
	ErrCodeAllBackendsExhausted ErrorCode = "ORCH-001"
	ErrCodeInvalidRequest       ErrorCode = "ORCH-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound  ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid   ErrorCode = "CONFIG-002"
	ErrCodeConfigUnmarshal ErrorCode = "CONFIG-003"

	// Server errors (SERVER-001 to SERVER-099)
	ErrCodeServerContract ErrorCode = "SERVER-001"
	ErrCodeServerRequest  ErrorCode = "SERVER-002"
	ErrCodeServerInternal ErrorCode = "SERVER-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-004"
	ErrCodeFileMarshal     ErrorCode = "IO-005"
)

// PlansmithError represents an enhanced error with code, suggestions, and documentation
type PlansmithError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *PlansmithError) Error() string {
	var b strings.Builder

	// Error code and message
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Add cause if present
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	// Add suggestions
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	// Add documentation link
	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *PlansmithError) Unwrap() error {
	return e.Cause
}

// New creates a new PlansmithError
func New(code ErrorCode, message string) *PlansmithError {
	return &PlansmithError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new PlansmithError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *PlansmithError {
	return &PlansmithError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *PlansmithError) WithSuggestion(suggestion string) *PlansmithError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *PlansmithError) WithSuggestions(suggestions ...string) *PlansmithError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *PlansmithError) WithDocs(url string) *PlansmithError {
	e.DocsURL = url
	return e
}

// Common error constructors for frequently used errors

// NewBackendNotFoundError creates an unknown backend error
func NewBackendNotFoundError(name string) *PlansmithError {
	return New(ErrCodeBackendNotFound, fmt.Sprintf("unknown backend: %s", name)).
		WithSuggestion("Run 'plansmith backends' to list configured backends").
		WithSuggestion("Check the 'backends' section of your config file").
		WithDocs("https://github.com/plansmith/plansmith#configuring-backends")
}

// NewBackendUnavailableError creates a backend unreachable error
func NewBackendUnavailableError(id string, detail string) *PlansmithError {
	msg := fmt.Sprintf("backend unavailable: %s", id)
	if detail != "" {
		msg += fmt.Sprintf(" (%s)", detail)
	}

	return New(ErrCodeBackendUnavailable, msg).
		WithSuggestion("Start a local inference server (LM Studio or Ollama)").
		WithSuggestion("Run 'plansmith backends' to see which backends are reachable").
		WithSuggestion("Check the backend's base URL in your config file").
		WithDocs("https://github.com/plansmith/plansmith#local-backends")
}

// NewCredentialMissingError creates a missing credential error for an
// explicitly requested provider
func NewCredentialMissingError(provider string) *PlansmithError {
	return New(ErrCodeCredentialMissing, fmt.Sprintf("no credential available for provider: %s", provider)).
		WithSuggestion(fmt.Sprintf("Run 'plansmith credentials set %s' to store a key", provider)).
		WithSuggestion(fmt.Sprintf("Set the %s_API_KEY environment variable", strings.ToUpper(provider))).
		WithSuggestion("Supply the key on the request itself (api_key field)").
		WithDocs("https://github.com/plansmith/plansmith#credentials")
}

// NewAllBackendsExhaustedError creates the terminal orchestration error.
// The diagnostic should be the most specific failure collected along the chain.
func NewAllBackendsExhaustedError(diagnostic string) *PlansmithError {
	msg := "all generation backends exhausted"
	if diagnostic != "" {
		msg += fmt.Sprintf(": %s", diagnostic)
	}

	return New(ErrCodeAllBackendsExhausted, msg).
		WithSuggestion("Start a local inference server (LM Studio or Ollama) and retry").
		WithSuggestion("Run 'plansmith backends' to see which backends are reachable").
		WithSuggestion("Retry with --allow-paid-fallback if you have a cloud API key configured").
		WithDocs("https://github.com/plansmith/plansmith#fallback-chain")
}

// NewConfigInvalidError creates a config validation error
func NewConfigInvalidError(details string) *PlansmithError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Check the config file syntax against the documented schema").
		WithSuggestion("Remove the config file to fall back to discovered defaults").
		WithDocs("https://github.com/plansmith/plansmith#configuration")
}

// NewCredentialStoreError creates a credential store access error
func NewCredentialStoreError(detail string, cause error) *PlansmithError {
	return Wrap(ErrCodeCredentialStore, fmt.Sprintf("credential store: %s", detail), cause).
		WithSuggestion("Check the PLANSMITH_STORE_PASSPHRASE environment variable").
		WithSuggestion("Remove the store file and re-add credentials if it is corrupted")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *PlansmithError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *PlansmithError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
