// Package audit appends immutable change records. Writes are best-effort:
// they run after the core transaction commits and a failure is logged, never
// propagated, so audit problems cannot roll back dispatch state.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

// Entry is one audited state change.
type Entry struct {
	OrganizationID uuid.UUID
	EntityType     string
	EntityID       uuid.UUID
	Action         string
	ActorUserID    *uuid.UUID
	Before         any
	After          any
}

// Recorder persists audit entries.
type Recorder struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewRecorder builds a best-effort audit recorder.
func NewRecorder(db *gorm.DB, logg *logger.Logger) *Recorder {
	return &Recorder{db: db, logg: logg}
}

// Record appends the entry. Errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	row, err := r.buildRow(entry)
	if err == nil {
		err = r.db.WithContext(ctx).Create(row).Error
	}
	if err != nil && r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID.String(),
			"action":      entry.Action,
		})
		r.logg.Error(logCtx, "audit write failed", err)
	}
}

// List returns the most recent records for one entity.
func (r *Recorder) List(ctx context.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ?", orgID, entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Recorder) buildRow(entry Entry) (*models.AuditRecord, error) {
	row := &models.AuditRecord{
		OrganizationID: entry.OrganizationID,
		EntityType:     entry.EntityType,
		EntityID:       entry.EntityID,
		Action:         entry.Action,
		ActorUserID:    entry.ActorUserID,
	}
	if entry.Before != nil {
		raw, err := json.Marshal(entry.Before)
		if err != nil {
			return nil, err
		}
		row.Before = raw
	}
	if entry.After != nil {
		raw, err := json.Marshal(entry.After)
		if err != nil {
			return nil, err
		}
		row.After = raw
	}
	return row, nil
}
