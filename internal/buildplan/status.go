package buildplan

import "fmt"

// Status represents the lifecycle state of a work packet.
type Status string

// Valid packet statuses
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// NormalizeStatus maps free-form model output to a canonical status.
// Unknown values default to pending.
func NormalizeStatus(value string) Status {
	switch lower(value) {
	case "pending", "todo", "open", "planned":
		return StatusPending
	case "in_progress", "in-progress", "active", "started":
		return StatusInProgress
	case "completed", "complete", "done", "closed":
		return StatusCompleted
	case "blocked", "on_hold", "on-hold":
		return StatusBlocked
	default:
		return StatusPending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return nil
	default:
		return fmt.Errorf("invalid status %q: must be pending, in_progress, completed, or blocked", string(s))
	}
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the status represents finished work
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}
