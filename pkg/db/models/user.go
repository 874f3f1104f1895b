package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// User represents the canonical identity entity (drivers and managers alike).
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID      `gorm:"column:organization_id;type:uuid;not null;index"`
	Email          string         `gorm:"type:text;not null;uniqueIndex"`
	FirstName      string         `gorm:"column:first_name;not null"`
	LastName       string         `gorm:"column:last_name;not null"`
	Phone          *string        `gorm:"column:phone"`
	Role           enums.UserRole `gorm:"column:role;type:user_role;not null;default:'driver'"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true"`
	HiredAt        *time.Time     `gorm:"column:hired_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
