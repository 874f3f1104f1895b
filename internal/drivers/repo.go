package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a drivers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error) {
	var metrics models.DriverMetrics
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&metrics).Error
	if err != nil {
		return nil, err
	}
	return &metrics, nil
}

func (r *repository) EnsureMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error) {
	metrics, err := r.FindMetrics(ctx, orgID, userID)
	if err == nil {
		return metrics, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	row := models.DriverMetrics{OrganizationID: orgID, UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&row).Error; err != nil {
		return nil, err
	}
	return r.FindMetrics(ctx, orgID, userID)
}

// ApplyReliabilityEvent bumps one counter column and shifts the health score
// in the same statement, flooring health at zero.
func (r *repository) ApplyReliabilityEvent(ctx context.Context, orgID, userID uuid.UUID, counter string, healthDelta float64) error {
	return r.db.WithContext(ctx).
		Model(&models.DriverMetrics{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Updates(map[string]any{
			counter:        gorm.Expr(counter + " + 1"),
			"health_score": gorm.Expr("GREATEST(health_score + ?, 0)", healthDelta),
		}).Error
}

func (r *repository) SetFlagged(ctx context.Context, orgID, userID uuid.UUID, flagged bool, at time.Time) error {
	updates := map[string]any{"flagged": flagged, "flagged_at": nil}
	if flagged {
		updates["flagged_at"] = at
	}
	return r.db.WithContext(ctx).
		Model(&models.DriverMetrics{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Updates(updates).Error
}

func (r *repository) IncrementFamiliarity(ctx context.Context, orgID, userID, routeID uuid.UUID) error {
	row := models.RouteFamiliarity{
		OrganizationID: orgID,
		UserID:         userID,
		RouteID:        routeID,
		CompletedCount: 1,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "route_id"}},
			DoUpdates: clause.Assignments(map[string]any{"completed_count": gorm.Expr("route_familiarities.completed_count + 1")}),
		}).
		Create(&row).Error
}

func (r *repository) FindFamiliarity(ctx context.Context, orgID, userID, routeID uuid.UUID) (int, error) {
	var row models.RouteFamiliarity
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ? AND route_id = ?", orgID, userID, routeID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.CompletedCount, nil
}

func (r *repository) ListPreferences(ctx context.Context, orgID, userID uuid.UUID) ([]models.DriverPreference, error) {
	var rows []models.DriverPreference
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Order("rank ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindPreferenceRank(ctx context.Context, orgID, userID, routeID uuid.UUID) (*int, error) {
	var row models.DriverPreference
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ? AND route_id = ?", orgID, userID, routeID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rank := row.Rank
	return &rank, nil
}

func (r *repository) ReplacePreferences(ctx context.Context, orgID, userID uuid.UUID, prefs []models.DriverPreference) error {
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ? AND locked_at IS NULL", orgID, userID).
		Delete(&models.DriverPreference{}).Error; err != nil {
		return err
	}
	if len(prefs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&prefs).Error
}

func (r *repository) LockAllPreferences(ctx context.Context, orgID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DriverPreference{}).
		Where("organization_id = ? AND locked_at IS NULL", orgID).
		Updates(map[string]any{"locked_at": at})
	return result.RowsAffected, result.Error
}

func (r *repository) CountAssignmentsInWeek(ctx context.Context, orgID, userID uuid.UUID, weekStart, weekEnd time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("organization_id = ? AND user_id = ? AND date >= ? AND date < ? AND status <> ?",
			orgID, userID, weekStart, weekEnd, enums.AssignmentStatusCancelled).
		Count(&count).Error
	return count, err
}

func (r *repository) ListDriversForWeek(ctx context.Context, orgID uuid.UUID, weekStart, weekEnd time.Time) ([]EligibleDriver, error) {
	var rows []EligibleDriver
	err := r.db.WithContext(ctx).Raw(`
		SELECT u.id AS user_id,
		       u.hired_at AS hired_at,
		       COALESCE(m.flagged, false) AS flagged,
		       m.weekly_cap AS weekly_cap,
		       (SELECT COUNT(*) FROM assignments a
		         WHERE a.user_id = u.id
		           AND a.organization_id = u.organization_id
		           AND a.date >= ? AND a.date < ?
		           AND a.status <> ?) AS week_count
		FROM users u
		LEFT JOIN driver_metrics m ON m.user_id = u.id
		WHERE u.organization_id = ? AND u.role = ?`,
		weekStart, weekEnd, enums.AssignmentStatusCancelled, orgID, enums.UserRoleDriver,
	).Scan(&rows).Error
	return rows, err
}
