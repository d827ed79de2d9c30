package buildplan

import (
	"fmt"
	"strings"
)

// Priority represents a work packet priority level.
// This is a value object that enforces valid priority values.
type Priority string

// Valid priority levels
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NormalizePriority maps free-form model output to a canonical priority.
// Unknown values default to medium.
func NormalizePriority(value string) Priority {
	switch lower(value) {
	case "high", "critical", "urgent", "p0":
		return PriorityHigh
	case "medium", "normal", "p1":
		return PriorityMedium
	case "low", "minor", "p2":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Validate checks if the priority is valid
func (p Priority) Validate() error {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("invalid priority %q: must be high, medium, or low", string(p))
	}
}

// String returns the string representation
func (p Priority) String() string {
	return string(p)
}

// IsHigherThan checks if this priority is higher than another
func (p Priority) IsHigherThan(other Priority) bool {
	return priorityRank(p) > priorityRank(other)
}

// priorityRank returns the numeric rank of a priority (higher = more important)
func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
