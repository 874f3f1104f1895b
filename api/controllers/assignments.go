package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/api/middleware"
	"github.com/routepilothq/routepilot-backend/api/responses"
	"github.com/routepilothq/routepilot-backend/api/validators"
	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/pagination"
)

func assignmentIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "assignmentId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid assignment id")
	}
	return id, nil
}

// ListDriverAssignments returns the caller's assignments, newest date first,
// with the legal transitions computed for each row.
func ListDriverAssignments(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignments service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		rows, err := svc.ListForDriver(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), params, from, to, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"assignments": rows})
	}
}

// ConfirmAssignment records the driver's confirmation inside the window.
func ConfirmAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
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
		detail, err := svc.Confirm(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), id, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// CancelAssignment is a driver dropping their own assignment. A replayed
// cancel returns the current state instead of a conflict.
func CancelAssignment(svc escalation.Service, logg *logger.Logger) http.HandlerFunc {
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
		result, err := svc.Cancel(r.Context(), escalation.CancelInput{
			OrganizationID: middleware.OrgIDFromContext(r.Context()),
			AssignmentID:   id,
			ActorUserID:    middleware.UserIDFromContext(r.Context()),
			ActorRole:      enums.UserRole(middleware.RoleFromContext(r.Context())),
		}, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ArriveAssignment marks warehouse arrival and opens the shift record.
func ArriveAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
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
		detail, err := svc.Arrive(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), id, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

type startAssignmentRequest struct {
	ParcelsStart int `json:"parcels_start" validate:"required,min=1"`
}

// StartAssignment records the loaded parcel count and moves the shift to
// in-progress.
func StartAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload startAssignmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.StartInventory(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), id, assignments.StartInventoryInput{
			ParcelsStart: payload.ParcelsStart,
		}, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

type completeAssignmentRequest struct {
	ParcelsDelivered int `json:"parcels_delivered" validate:"min=0"`
	ParcelsReturned  int `json:"parcels_returned" validate:"min=0"`
}

// CompleteAssignment closes out the shift with delivery counts.
func CompleteAssignment(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload completeAssignmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Complete(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), id, assignments.CompleteInput{
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
