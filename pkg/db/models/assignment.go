package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// Assignment binds a driver to a route on a date. It is never physically
// deleted; cancellation is a status. The partial unique index
// ux_assignments_driver_date guarantees at most one non-cancelled assignment
// per (driver, date).
type Assignment struct {
	ID             uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID              `gorm:"column:organization_id;type:uuid;not null;index"`
	RouteID        uuid.UUID              `gorm:"column:route_id;type:uuid;not null;index"`
	WarehouseID    uuid.UUID              `gorm:"column:warehouse_id;type:uuid;not null"`
	Date           time.Time              `gorm:"column:date;type:date;not null"`
	UserID         *uuid.UUID             `gorm:"column:user_id;type:uuid"`
	Status         enums.AssignmentStatus `gorm:"column:status;type:assignment_status;not null;default:'scheduled'"`
	ConfirmedAt    *time.Time             `gorm:"column:confirmed_at"`
	CancelledAt    *time.Time             `gorm:"column:cancelled_at"`
	CancelType     *enums.CancelType      `gorm:"column:cancel_type;type:cancel_type"`
	AssignedBy     *uuid.UUID             `gorm:"column:assigned_by;type:uuid"`
	AssignedAt     *time.Time             `gorm:"column:assigned_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`

	Shift *Shift `gorm:"foreignKey:AssignmentID"`
}
