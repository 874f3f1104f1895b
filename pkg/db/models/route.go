package models

import (
	"time"

	"github.com/google/uuid"
)

// Route is a named delivery region tied to a warehouse and a manager.
// StartMinutes is the local start-of-shift time-of-day expressed as minutes
// after midnight in the business timezone; nil means the policy default.
type Route struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID  `gorm:"column:organization_id;type:uuid;not null;index"`
	WarehouseID    uuid.UUID  `gorm:"column:warehouse_id;type:uuid;not null"`
	ManagerUserID  uuid.UUID  `gorm:"column:manager_user_id;type:uuid;not null"`
	Name           string     `gorm:"column:name;not null"`
	StartMinutes   *int       `gorm:"column:start_minutes"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	DeactivatedAt  *time.Time `gorm:"column:deactivated_at"`
}

// Warehouse is the depot a route is staged from.
type Warehouse struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	Name           string    `gorm:"column:name;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
