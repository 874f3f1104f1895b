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

type repository struct {
	db *gorm.DB
}

// NewRepository builds an assignments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, assignment *models.Assignment) (*models.Assignment, error) {
	if err := r.db.WithContext(ctx).Create(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

func (r *repository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Shift").
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) FindByIDWithRoute(ctx context.Context, orgID, id uuid.UUID) (*models.Assignment, *models.Route, error) {
	assignment, err := r.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	var route models.Route
	err = r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, assignment.RouteID).
		First(&route).Error
	if err != nil {
		return nil, nil, err
	}
	return assignment, &route, nil
}

func (r *repository) ListByDriver(ctx context.Context, orgID, userID uuid.UUID, params pagination.Params, from, to *time.Time) ([]models.Assignment, error) {
	query := r.db.WithContext(ctx).
		Preload("Shift").
		Where("organization_id = ? AND user_id = ?", orgID, userID)
	if from != nil {
		query = query.Where("date >= ?", *from)
	}
	if to != nil {
		query = query.Where("date < ?", *to)
	}
	var rows []models.Assignment
	err := query.
		Order("date ASC").
		Order("id ASC").
		Limit(pagination.NormalizeLimit(params.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByRouteDate(ctx context.Context, orgID, routeID uuid.UUID, date time.Time) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND route_id = ? AND date = ?", orgID, routeID, date).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListRoutesByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Route, error) {
	routes := make(map[uuid.UUID]models.Route, len(ids))
	if len(ids) == 0 {
		return routes, nil
	}
	var rows []models.Route
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, route := range rows {
		routes[route.ID] = route
	}
	return routes, nil
}

func (r *repository) ConfirmGuarded(ctx context.Context, id, userID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND user_id = ? AND status = ? AND confirmed_at IS NULL",
			id, userID, enums.AssignmentStatusScheduled).
		Updates(map[string]any{"confirmed_at": at})
	return result.RowsAffected, result.Error
}

func (r *repository) ActivateGuarded(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND user_id = ? AND status = ? AND confirmed_at IS NOT NULL",
			id, userID, enums.AssignmentStatusScheduled).
		Updates(map[string]any{"status": enums.AssignmentStatusActive})
	return result.RowsAffected, result.Error
}

func (r *repository) CompleteGuarded(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, enums.AssignmentStatusActive).
		Updates(map[string]any{"status": enums.AssignmentStatusCompleted})
	return result.RowsAffected, result.Error
}

// VacateGuarded records why the driver left and moves the assignment to the
// caller's end state: cancelled keeps the driver on the row for history (the
// partial unique index ignores cancelled rows, freeing their date), unfilled
// clears the driver so the route is visibly awaiting re-fill.
func (r *repository) VacateGuarded(ctx context.Context, id uuid.UUID, cancelType enums.CancelType, at time.Time, toStatus enums.AssignmentStatus) (int64, error) {
	updates := map[string]any{
		"status":       toStatus,
		"cancelled_at": at,
		"cancel_type":  cancelType,
	}
	if toStatus == enums.AssignmentStatusUnfilled {
		updates["user_id"] = nil
		updates["confirmed_at"] = nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND status IN ?", id,
			[]enums.AssignmentStatus{enums.AssignmentStatusScheduled, enums.AssignmentStatusActive}).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// ClaimGuarded books the winning driver onto an unfilled assignment. The
// partial unique index on (user_id, date) is the backstop against a racing
// double-booking; its violation surfaces as a typed conflict upstream.
func (r *repository) ClaimGuarded(ctx context.Context, id, winnerID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND status IN ?", id,
			[]enums.AssignmentStatus{enums.AssignmentStatusUnfilled, enums.AssignmentStatusCancelled}).
		Updates(map[string]any{
			"status":       enums.AssignmentStatusScheduled,
			"user_id":      winnerID,
			"confirmed_at": at,
			"assigned_at":  at,
			"cancelled_at": nil,
			"cancel_type":  nil,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ReassignGuarded(ctx context.Context, id, driverID, managerID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND status IN ?", id,
			[]enums.AssignmentStatus{enums.AssignmentStatusScheduled, enums.AssignmentStatusUnfilled, enums.AssignmentStatusCancelled}).
		Updates(map[string]any{
			"status":       enums.AssignmentStatusScheduled,
			"user_id":      driverID,
			"confirmed_at": at,
			"assigned_by":  managerID,
			"assigned_at":  at,
			"cancelled_at": nil,
			"cancel_type":  nil,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CreateShift(ctx context.Context, shift *models.Shift) (*models.Shift, error) {
	if err := r.db.WithContext(ctx).Create(shift).Error; err != nil {
		return nil, err
	}
	return shift, nil
}

func (r *repository) FindShiftByAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.Shift, error) {
	var shift models.Shift
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND assignment_id = ?", orgID, assignmentID).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *repository) StartShiftGuarded(ctx context.Context, assignmentID uuid.UUID, parcelsStart int, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Shift{}).
		Where("assignment_id = ? AND started_at IS NULL AND completed_at IS NULL", assignmentID).
		Updates(map[string]any{
			"parcels_start": parcelsStart,
			"started_at":    at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CompleteShiftGuarded(ctx context.Context, assignmentID uuid.UUID, delivered, returned int, at, editableUntil time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Shift{}).
		Where("assignment_id = ? AND started_at IS NOT NULL AND completed_at IS NULL", assignmentID).
		Updates(map[string]any{
			"parcels_delivered": delivered,
			"parcels_returned":  returned,
			"completed_at":      at,
			"editable_until":    editableUntil,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateShift(ctx context.Context, orgID, assignmentID uuid.UUID, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Shift{}).
		Where("organization_id = ? AND assignment_id = ?", orgID, assignmentID).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// ListUnconfirmedScheduled returns driver-held scheduled assignments without a
// confirmation, up to the horizon date. Deadline math happens in the caller
// against the business clock, not in SQL.
func (r *repository) ListUnconfirmedScheduled(ctx context.Context, horizon time.Time) ([]AssignmentWithRoute, error) {
	return r.listWithRoutes(ctx, r.db.WithContext(ctx).
		Where("assignments.status = ? AND assignments.user_id IS NOT NULL AND assignments.confirmed_at IS NULL AND assignments.date <= ?",
			enums.AssignmentStatusScheduled, horizon))
}

// ListArrivalPending returns confirmed assignments for the given day whose
// driver has no shift record yet.
func (r *repository) ListArrivalPending(ctx context.Context, dayStart, dayEnd time.Time) ([]AssignmentWithRoute, error) {
	return r.listWithRoutes(ctx, r.db.WithContext(ctx).
		Joins("LEFT JOIN shifts ON shifts.assignment_id = assignments.id").
		Where("assignments.status IN ? AND assignments.user_id IS NOT NULL AND assignments.confirmed_at IS NOT NULL",
			[]enums.AssignmentStatus{enums.AssignmentStatusScheduled, enums.AssignmentStatusActive}).
		Where("assignments.date >= ? AND assignments.date < ?", dayStart, dayEnd).
		Where("shifts.id IS NULL"))
}

func (r *repository) listWithRoutes(ctx context.Context, query *gorm.DB) ([]AssignmentWithRoute, error) {
	var assignments []models.Assignment
	if err := query.Model(&models.Assignment{}).
		Order("assignments.date ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	routeIDs := make([]uuid.UUID, 0, len(assignments))
	for _, a := range assignments {
		routeIDs = append(routeIDs, a.RouteID)
	}
	var routes []models.Route
	if err := r.db.WithContext(ctx).Where("id IN ?", routeIDs).Find(&routes).Error; err != nil {
		return nil, err
	}
	routesByID := make(map[uuid.UUID]models.Route, len(routes))
	for _, route := range routes {
		routesByID[route.ID] = route
	}

	out := make([]AssignmentWithRoute, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignmentWithRoute{Assignment: a, Route: routesByID[a.RouteID]})
	}
	return out, nil
}
