package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/api/middleware"
	"github.com/routepilothq/routepilot-backend/api/responses"
	"github.com/routepilothq/routepilot-backend/api/validators"
	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return id, nil
}

type overrideAssignmentRequest struct {
	Action   string  `json:"action" validate:"required,oneof=reassign open_bidding open_urgent_bidding"`
	DriverID *string `json:"driver_id,omitempty" validate:"omitempty,uuid"`
}

// OverrideAssignment is the manager escape hatch: place a specific driver on
// a vacancy, or force a replacement window open.
func OverrideAssignment(svc escalation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escalation service unavailable"))
			return
		}
		id, err := assignmentIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload overrideAssignmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orgID := middleware.OrgIDFromContext(r.Context())
		managerID := middleware.UserIDFromContext(r.Context())
		now := time.Now()

		switch enums.OverrideAction(payload.Action) {
		case enums.OverrideActionReassign:
			if payload.DriverID == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "driver_id is required for reassign"))
				return
			}
			driverID, err := parseUUIDField(*payload.DriverID, "driver_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			assignment, err := svc.Reassign(r.Context(), escalation.ReassignInput{
				OrganizationID: orgID,
				AssignmentID:   id,
				DriverID:       driverID,
				ManagerID:      managerID,
			}, now)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, assignment)
		case enums.OverrideActionOpenBidding:
			window, err := svc.OpenBidding(r.Context(), escalation.OpenBiddingInput{
				OrganizationID: orgID,
				AssignmentID:   id,
				ManagerID:      managerID,
			}, now)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, window)
		case enums.OverrideActionOpenUrgentBidding:
			window, err := svc.OpenUrgentBidding(r.Context(), escalation.OpenBiddingInput{
				OrganizationID: orgID,
				AssignmentID:   id,
				ManagerID:      managerID,
			}, now)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, window)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown override action"))
		}
	}
}

type editShiftRequest struct {
	ParcelsStart     *int `json:"parcels_start,omitempty" validate:"omitempty,min=0"`
	ParcelsDelivered *int `json:"parcels_delivered,omitempty" validate:"omitempty,min=0"`
	ParcelsReturned  *int `json:"parcels_returned,omitempty" validate:"omitempty,min=0"`
}

// EditShift applies a manager correction to a shift's recorded counts after
// the driver's own edit window has closed.
func EditShift(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignments service unavailable"))
			return
		}
		id, err := assignmentIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload editShiftRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.ParcelsStart == nil && payload.ParcelsDelivered == nil && payload.ParcelsReturned == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one field must be provided"))
			return
		}
		detail, err := svc.EditShift(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), id, assignments.ShiftEditInput{
			ParcelsStart:     payload.ParcelsStart,
			ParcelsDelivered: payload.ParcelsDelivered,
			ParcelsReturned:  payload.ParcelsReturned,
		}, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
