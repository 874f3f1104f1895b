package drivers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
)

// EligibleDriver is one row of the bid-eligibility query: a driver in the
// organization with their flag state, per-driver cap override, and how many
// non-cancelled assignments they already hold in the business week.
type EligibleDriver struct {
	UserID    uuid.UUID  `gorm:"column:user_id"`
	HiredAt   *time.Time `gorm:"column:hired_at"`
	Flagged   bool       `gorm:"column:flagged"`
	WeeklyCap *int       `gorm:"column:weekly_cap"`
	WeekCount int        `gorm:"column:week_count"`
}

// Repository defines persistence operations for driver metrics, familiarity
// and preferences.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error)
	EnsureMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error)
	ApplyReliabilityEvent(ctx context.Context, orgID, userID uuid.UUID, counter string, healthDelta float64) error
	SetFlagged(ctx context.Context, orgID, userID uuid.UUID, flagged bool, at time.Time) error

	IncrementFamiliarity(ctx context.Context, orgID, userID, routeID uuid.UUID) error
	FindFamiliarity(ctx context.Context, orgID, userID, routeID uuid.UUID) (int, error)

	ListPreferences(ctx context.Context, orgID, userID uuid.UUID) ([]models.DriverPreference, error)
	FindPreferenceRank(ctx context.Context, orgID, userID, routeID uuid.UUID) (*int, error)
	ReplacePreferences(ctx context.Context, orgID, userID uuid.UUID, prefs []models.DriverPreference) error
	LockAllPreferences(ctx context.Context, orgID uuid.UUID, at time.Time) (int64, error)

	CountAssignmentsInWeek(ctx context.Context, orgID, userID uuid.UUID, weekStart, weekEnd time.Time) (int64, error)
	ListDriversForWeek(ctx context.Context, orgID uuid.UUID, weekStart, weekEnd time.Time) ([]EligibleDriver, error)
}
