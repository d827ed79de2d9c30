package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/plansmith/plansmith/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// GenerationFailed indicates every backend in the chain was exhausted
	GenerationFailed = 3

	// UnparseableOutput indicates a backend answered but no valid plan
	// could be extracted
	UnparseableOutput = 4

	// AuthError indicates a missing or rejected credential
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit
// code. Structured errors map by their code; anything else falls back to
// message matching.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var perr *errors.PlansmithError
	if stderrors.As(err, &perr) {
		switch perr.Code {
		case errors.ErrCodeAllBackendsExhausted:
			return GenerationFailed
		case errors.ErrCodeUnparseableOutput, errors.ErrCodePlanInvalid:
			return UnparseableOutput
		case errors.ErrCodeCredentialMissing, errors.ErrCodeCredentialStore:
			return AuthError
		case errors.ErrCodeTransportFailure, errors.ErrCodeTransportTimeout, errors.ErrCodeBackendUnavailable:
			return NetworkError
		case errors.ErrCodeInvalidRequest, errors.ErrCodeConfigInvalid, errors.ErrCodeConfigUnmarshal:
			return UsageError
		default:
			return GeneralError
		}
	}

	errMsg := strings.ToLower(err.Error())

	// Authentication errors
	if strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return AuthError
	}
	if strings.Contains(errMsg, "api key") {
		return AuthError
	}

	// Network errors
	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "timed out") {
		return NetworkError
	}

	// Usage errors
	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "missing argument") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case GenerationFailed:
		return "Generation failed (all backends exhausted)"
	case UnparseableOutput:
		return "Backend output could not be parsed into a plan"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted by signal"
	default:
		return "Unknown error"
	}
}
