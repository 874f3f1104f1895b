package escalation

import (
	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// CancelInput identifies who is pulling a driver off an assignment.
type CancelInput struct {
	OrganizationID uuid.UUID
	AssignmentID   uuid.UUID
	ActorUserID    uuid.UUID
	ActorRole      enums.UserRole
}

// CancelResult reports the post-cancel state. AlreadyCancelled marks a
// replayed cancel that found the assignment vacated; the caller gets the
// current state instead of an error.
type CancelResult struct {
	Assignment       models.Assignment
	Window           *models.BidWindow
	LateCancel       bool
	AlreadyCancelled bool
}

// ReassignInput is a manager placing a specific driver on an assignment,
// bypassing bidding.
type ReassignInput struct {
	OrganizationID uuid.UUID
	AssignmentID   uuid.UUID
	DriverID       uuid.UUID
	ManagerID      uuid.UUID
}

// OpenBiddingInput is a manual manager request for a replacement window.
type OpenBiddingInput struct {
	OrganizationID uuid.UUID
	AssignmentID   uuid.UUID
	ManagerID      uuid.UUID
}

// SweepResult summarizes a batch trigger run.
type SweepResult struct {
	Candidates int
	Processed  int
	Skipped    int
}
