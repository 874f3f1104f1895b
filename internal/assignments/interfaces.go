package assignments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/pagination"
)

// Repository defines persistence operations for assignments and shifts. Every
// guarded mutation returns the affected row count so callers can translate a
// zero into a state conflict instead of retrying blindly.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, assignment *models.Assignment) (*models.Assignment, error)
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Assignment, error)
	FindByIDWithRoute(ctx context.Context, orgID, id uuid.UUID) (*models.Assignment, *models.Route, error)
	ListByDriver(ctx context.Context, orgID, userID uuid.UUID, params pagination.Params, from, to *time.Time) ([]models.Assignment, error)
	ListByRouteDate(ctx context.Context, orgID, routeID uuid.UUID, date time.Time) ([]models.Assignment, error)
	ListRoutesByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Route, error)

	ConfirmGuarded(ctx context.Context, id, userID uuid.UUID, at time.Time) (int64, error)
	ActivateGuarded(ctx context.Context, id, userID uuid.UUID) (int64, error)
	CompleteGuarded(ctx context.Context, id, userID uuid.UUID) (int64, error)
	VacateGuarded(ctx context.Context, id uuid.UUID, cancelType enums.CancelType, at time.Time, toStatus enums.AssignmentStatus) (int64, error)
	ClaimGuarded(ctx context.Context, id, winnerID uuid.UUID, at time.Time) (int64, error)
	ReassignGuarded(ctx context.Context, id, driverID, managerID uuid.UUID, at time.Time) (int64, error)

	CreateShift(ctx context.Context, shift *models.Shift) (*models.Shift, error)
	FindShiftByAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.Shift, error)
	StartShiftGuarded(ctx context.Context, assignmentID uuid.UUID, parcelsStart int, at time.Time) (int64, error)
	CompleteShiftGuarded(ctx context.Context, assignmentID uuid.UUID, delivered, returned int, at, editableUntil time.Time) (int64, error)
	UpdateShift(ctx context.Context, orgID, assignmentID uuid.UUID, updates map[string]any) (int64, error)

	ListUnconfirmedScheduled(ctx context.Context, horizon time.Time) ([]AssignmentWithRoute, error)
	ListArrivalPending(ctx context.Context, dayStart, dayEnd time.Time) ([]AssignmentWithRoute, error)
}

// AssignmentWithRoute pairs an assignment with its route for deadline math in
// batch triggers.
type AssignmentWithRoute struct {
	Assignment models.Assignment
	Route      models.Route
}
