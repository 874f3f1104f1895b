package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// BidWindow is a time-boxed opportunity to re-fill an assignment. The partial
// unique index ux_bid_windows_open_assignment guarantees at most one open
// window per assignment at any instant; an assignment may accumulate many
// historical windows.
type BidWindow struct {
	ID              uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID  uuid.UUID             `gorm:"column:organization_id;type:uuid;not null;index"`
	AssignmentID    uuid.UUID             `gorm:"column:assignment_id;type:uuid;not null;index"`
	Mode            enums.BidWindowMode   `gorm:"column:mode;type:bid_window_mode;not null"`
	Trigger         enums.BidTrigger      `gorm:"column:trigger;type:bid_trigger;not null"`
	PayBonusPercent decimal.Decimal       `gorm:"column:pay_bonus_percent;type:numeric(5,2);not null;default:0"`
	OpensAt         time.Time             `gorm:"column:opens_at;not null"`
	ClosesAt        time.Time             `gorm:"column:closes_at;not null"`
	Status          enums.BidWindowStatus `gorm:"column:status;type:bid_window_status;not null;default:'open'"`
	WinnerID        *uuid.UUID            `gorm:"column:winner_id;type:uuid"`
	ResolvedAt      *time.Time            `gorm:"column:resolved_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
