package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
)

// Repository covers the read side of weekly generation: routes, frozen
// preferences, and the assignments already on the board.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListActiveOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
	ListActiveRoutes(ctx context.Context, orgID uuid.UUID) ([]models.Route, error)
	ListLockedPreferences(ctx context.Context, orgID uuid.UUID) ([]models.DriverPreference, error)
	ListAssignmentsInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]models.Assignment, error)
}
