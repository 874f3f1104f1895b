package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a schedule repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListActiveOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("is_active = TRUE").
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) ListActiveRoutes(ctx context.Context, orgID uuid.UUID) ([]models.Route, error) {
	var rows []models.Route
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = TRUE", orgID).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListLockedPreferences(ctx context.Context, orgID uuid.UUID) ([]models.DriverPreference, error) {
	var rows []models.DriverPreference
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND locked_at IS NOT NULL", orgID).
		Order("rank ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListAssignmentsInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND date >= ? AND date < ?", orgID, from, to).
		Find(&rows).Error
	return rows, err
}
