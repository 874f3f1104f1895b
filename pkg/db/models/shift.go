package models

import (
	"time"

	"github.com/google/uuid"
)

// Shift is the 1:1 execution record created when the driver arrives.
// It becomes immutable after EditableUntil except via manager override.
type Shift struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AssignmentID     uuid.UUID  `gorm:"column:assignment_id;type:uuid;not null;uniqueIndex"`
	OrganizationID   uuid.UUID  `gorm:"column:organization_id;type:uuid;not null;index"`
	ArrivedAt        time.Time  `gorm:"column:arrived_at;not null"`
	ParcelsStart     *int       `gorm:"column:parcels_start"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	ParcelsDelivered *int       `gorm:"column:parcels_delivered"`
	ParcelsReturned  *int       `gorm:"column:parcels_returned"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	EditableUntil    *time.Time `gorm:"column:editable_until"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
