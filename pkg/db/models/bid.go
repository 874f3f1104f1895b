package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// Bid is a driver's claim on an open window. A driver may bid once per
// window (unique on bid_window_id + user_id) and at most one bid per window
// ever reaches won status (partial unique index ux_bids_won_window).
type Bid struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID       `gorm:"column:organization_id;type:uuid;not null;index"`
	BidWindowID    uuid.UUID       `gorm:"column:bid_window_id;type:uuid;not null;index"`
	AssignmentID   uuid.UUID       `gorm:"column:assignment_id;type:uuid;not null"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	Status         enums.BidStatus `gorm:"column:status;type:bid_status;not null;default:'pending'"`
	Score          *float64        `gorm:"column:score"`
	BidAt          time.Time       `gorm:"column:bid_at;not null"`
	WindowClosesAt time.Time       `gorm:"column:window_closes_at;not null"`
	ResolvedAt     *time.Time      `gorm:"column:resolved_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
