package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to users.
type Notification struct {
	ID             uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID              `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type           enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title          string                 `gorm:"column:title;type:text;not null"`
	Message        string                 `gorm:"column:message;type:text;not null"`
	Payload        json.RawMessage        `gorm:"column:payload;type:jsonb"`
	ReadAt         *time.Time             `gorm:"column:read_at;type:timestamptz"`
	CreatedAt      time.Time              `gorm:"column:created_at;type:timestamptz;default:now()"`
}
