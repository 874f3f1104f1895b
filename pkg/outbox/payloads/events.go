package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// AssignmentCreatedEvent announces a new scheduled assignment.
type AssignmentCreatedEvent struct {
	AssignmentID   uuid.UUID  `json:"assignment_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	RouteID        uuid.UUID  `json:"route_id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Date           time.Time  `json:"date"`
	AssignedBy     string     `json:"assigned_by"`
}

// AssignmentConfirmedEvent is emitted when a driver confirms inside the window.
type AssignmentConfirmedEvent struct {
	AssignmentID   uuid.UUID `json:"assignment_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	RouteID        uuid.UUID `json:"route_id"`
	UserID         uuid.UUID `json:"user_id"`
	Date           time.Time `json:"date"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
}

// AssignmentCancelledEvent covers driver cancels, auto-drops, no-shows and
// manager removals; CancelType discriminates.
type AssignmentCancelledEvent struct {
	AssignmentID   uuid.UUID        `json:"assignment_id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	RouteID        uuid.UUID        `json:"route_id"`
	UserID         *uuid.UUID       `json:"user_id,omitempty"`
	Date           time.Time        `json:"date"`
	CancelType     enums.CancelType `json:"cancel_type"`
	CancelledAt    time.Time        `json:"cancelled_at"`
	BidWindowID    *uuid.UUID       `json:"bid_window_id,omitempty"`
}

// AssignmentUpdatedEvent reports shift detail edits (parcel counts, timestamps).
type AssignmentUpdatedEvent struct {
	AssignmentID   uuid.UUID `json:"assignment_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	UpdatedBy      uuid.UUID `json:"updated_by"`
	Fields         []string  `json:"fields"`
}

// AssignmentCompletedEvent closes out a delivered shift.
type AssignmentCompletedEvent struct {
	AssignmentID     uuid.UUID `json:"assignment_id"`
	OrganizationID   uuid.UUID `json:"organization_id"`
	RouteID          uuid.UUID `json:"route_id"`
	UserID           uuid.UUID `json:"user_id"`
	Date             time.Time `json:"date"`
	ParcelsDelivered int       `json:"parcels_delivered"`
	ParcelsReturned  int       `json:"parcels_returned"`
	CompletedAt      time.Time `json:"completed_at"`
}

// AutoDropExecutedEvent records a missed confirmation deadline.
type AutoDropExecutedEvent struct {
	AssignmentID   uuid.UUID  `json:"assignment_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Date           time.Time  `json:"date"`
	Deadline       time.Time  `json:"deadline"`
	BidWindowID    *uuid.UUID `json:"bid_window_id,omitempty"`
}

// NoShowDetectedEvent records a driver who never arrived past the hard cutoff.
type NoShowDetectedEvent struct {
	AssignmentID   uuid.UUID  `json:"assignment_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Date           time.Time  `json:"date"`
	DetectedAt     time.Time  `json:"detected_at"`
	BidWindowID    *uuid.UUID `json:"bid_window_id,omitempty"`
}

// BidWindowOpenedEvent fans out to every eligible driver.
type BidWindowOpenedEvent struct {
	BidWindowID     uuid.UUID           `json:"bid_window_id"`
	AssignmentID    uuid.UUID           `json:"assignment_id"`
	OrganizationID  uuid.UUID           `json:"organization_id"`
	RouteID         uuid.UUID           `json:"route_id"`
	Date            time.Time           `json:"date"`
	Mode            enums.BidWindowMode `json:"mode"`
	Trigger         enums.BidTrigger    `json:"trigger"`
	OpensAt         time.Time           `json:"opens_at"`
	ClosesAt        time.Time           `json:"closes_at"`
	PayBonusPercent decimal.Decimal     `json:"pay_bonus_percent"`
	EligibleUserIDs []uuid.UUID         `json:"eligible_user_ids"`
}

// BidWindowClosedEvent is emitted when a window expires or is superseded.
type BidWindowClosedEvent struct {
	BidWindowID      uuid.UUID  `json:"bid_window_id"`
	AssignmentID     uuid.UUID  `json:"assignment_id"`
	OrganizationID   uuid.UUID  `json:"organization_id"`
	BidCount         int        `json:"bid_count"`
	ClosedAt         time.Time  `json:"closed_at"`
	FallbackWindowID *uuid.UUID `json:"fallback_window_id,omitempty"`
}

// BidWindowResolvedEvent carries the winner and the losers to notify.
type BidWindowResolvedEvent struct {
	BidWindowID    uuid.UUID   `json:"bid_window_id"`
	AssignmentID   uuid.UUID   `json:"assignment_id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	RouteID        uuid.UUID   `json:"route_id"`
	Date           time.Time   `json:"date"`
	WinnerUserID   uuid.UUID   `json:"winner_user_id"`
	WinningScore   *float64    `json:"winning_score,omitempty"`
	LosingUserIDs  []uuid.UUID `json:"losing_user_ids"`
	ResolvedAt     time.Time   `json:"resolved_at"`
}

// ScheduleGeneratedEvent summarizes a weekly generation run.
type ScheduleGeneratedEvent struct {
	OrganizationID     uuid.UUID `json:"organization_id"`
	WeekStart          time.Time `json:"week_start"`
	AssignmentsCreated int       `json:"assignments_created"`
	RoutesUnfilled     int       `json:"routes_unfilled"`
}

// PreferencesLockedEvent marks the weekly preference freeze.
type PreferencesLockedEvent struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	WeekStart      time.Time `json:"week_start"`
	LockedAt       time.Time `json:"locked_at"`
	DriversLocked  int       `json:"drivers_locked"`
}
