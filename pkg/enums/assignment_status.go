package enums

import "fmt"

// AssignmentStatus maps to the assignment_status enum in Postgres.
type AssignmentStatus string

const (
	AssignmentStatusScheduled AssignmentStatus = "scheduled"
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusCancelled AssignmentStatus = "cancelled"
	AssignmentStatusUnfilled  AssignmentStatus = "unfilled"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusScheduled,
	AssignmentStatusActive,
	AssignmentStatusCompleted,
	AssignmentStatusCancelled,
	AssignmentStatusUnfilled,
}

// IsValid checks whether the given status matches the canonical enum.
func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition may leave the status.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusCancelled
}

// ParseAssignmentStatus converts raw strings into AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
