package ux

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/plansmith/plansmith/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError analyzes an error and adds contextual suggestions.
// Structured errors already carry their own suggestions and pass
// through unchanged; only raw errors from the OS or the network get
// the string-matching treatment.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}

	var perr *errors.PlansmithError
	if stderrors.As(err, &perr) {
		return err
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no route to host") {
		return NewErrorWithSuggestion(err,
			"Check that the server is running and reachable, e.g. 'plansmith backends' to see what is online")
	}

	if strings.Contains(errMsg, "permission denied") {
		return NewErrorWithSuggestion(err,
			"Check file permissions and ensure you have access to the required files/directories")
	}

	if strings.Contains(errMsg, "no such file or directory") {
		if strings.Contains(errMsg, "config.yaml") {
			return NewErrorWithSuggestion(err,
				"Create a starting configuration with 'plansmith config init'")
		}
		return NewErrorWithSuggestion(err,
			"Check that the path exists and is spelled correctly")
	}

	if strings.Contains(errMsg, "API key") || strings.Contains(errMsg, "authentication") {
		return NewErrorWithSuggestion(err,
			"Set the provider key environment variable (e.g. ANTHROPIC_API_KEY) or store one with 'plansmith credentials set'")
	}

	if strings.Contains(errMsg, "context deadline exceeded") {
		return NewErrorWithSuggestion(err,
			"The operation timed out; raise the backend timeout in the configuration or try a smaller prompt")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}

// Error renders an error for the terminal. Structured errors show their
// code, suggestions, and documentation link; anything else prints as a
// single red line.
func (r *Renderer) Error(err error) string {
	if err == nil {
		return ""
	}

	var perr *errors.PlansmithError
	if !stderrors.As(err, &perr) {
		return r.bad.Render("✗ "+err.Error()) + "\n"
	}

	var output strings.Builder
	output.WriteString(r.bad.Render(fmt.Sprintf("✗ [%s] %s", perr.Code, perr.Message)))
	output.WriteString("\n")

	if perr.Cause != nil {
		output.WriteString(r.dim.Render("  cause: " + perr.Cause.Error()))
		output.WriteString("\n")
	}

	if len(perr.Suggestions) > 0 {
		output.WriteString(r.label.Render("  Try:"))
		output.WriteString("\n")
		for _, s := range perr.Suggestions {
			output.WriteString("    • " + s + "\n")
		}
	}

	if perr.DocsURL != "" {
		output.WriteString(r.dim.Render("  docs: " + perr.DocsURL))
		output.WriteString("\n")
	}
	return output.String()
}
