package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is an append-only trail entry for dispatch state changes.
// Writes are best-effort after the core transaction commits.
type AuditRecord struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID       `gorm:"column:organization_id;type:uuid;not null;index"`
	EntityType     string          `gorm:"column:entity_type;not null"`
	EntityID       uuid.UUID       `gorm:"column:entity_id;type:uuid;not null;index"`
	Action         string          `gorm:"column:action;not null"`
	ActorUserID    *uuid.UUID      `gorm:"column:actor_user_id;type:uuid"`
	Before         json.RawMessage `gorm:"column:before;type:jsonb"`
	After          json.RawMessage `gorm:"column:after;type:jsonb"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
