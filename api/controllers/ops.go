package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/api/middleware"
	"github.com/routepilothq/routepilot-backend/api/responses"
	"github.com/routepilothq/routepilot-backend/api/validators"
	"github.com/routepilothq/routepilot-backend/internal/bidding"
	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/internal/schedule"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

// DLQReader exposes read access to dead-lettered outbox events.
type DLQReader interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// RunAutoDrop sweeps unconfirmed assignments past their confirmation
// deadline. Safe to invoke repeatedly; already-processed rows are skipped.
func RunAutoDrop(svc escalation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escalation service unavailable"))
			return
		}
		result, err := svc.RunAutoDrop(r.Context(), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RunNoShowDetection sweeps confirmed assignments whose driver missed the
// arrival hard cutoff.
func RunNoShowDetection(svc escalation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escalation service unavailable"))
			return
		}
		result, err := svc.RunNoShowDetection(r.Context(), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RunBidWindowExpiry settles open bid windows whose close time has passed.
func RunBidWindowExpiry(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidding service unavailable"))
			return
		}
		settled, err := svc.ResolveExpired(r.Context(), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"settled": settled})
	}
}

type runWeeklyScheduleRequest struct {
	WeekStart string `json:"week_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// RunWeeklySchedule generates the schedule for the caller's organization.
// week_start defaults to the week after the current one; any date inside the
// target week is accepted.
func RunWeeklySchedule(svc schedule.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "schedule service unavailable"))
			return
		}
		now := time.Now()
		weekOf := now.AddDate(0, 0, 7)
		if r.Body != nil && r.ContentLength != 0 {
			var payload runWeeklyScheduleRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if payload.WeekStart != "" {
				parsed, err := time.Parse("2006-01-02", payload.WeekStart)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid week_start"))
					return
				}
				weekOf = parsed
			}
		}
		result, err := svc.GenerateWeek(r.Context(), middleware.OrgIDFromContext(r.Context()), weekOf, now)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RunPreferenceLock freezes driver route preferences ahead of generation.
func RunPreferenceLock(svc schedule.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "schedule service unavailable"))
			return
		}
		locked, err := svc.LockPreferences(r.Context(), middleware.OrgIDFromContext(r.Context()), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"drivers_locked": locked})
	}
}

// ListOutboxDLQ returns the most recent dead-lettered events for manual
// inspection and replay decisions.
func ListOutboxDLQ(dlq DLQReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq repository unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := dlq.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": rows})
	}
}

// GetOutboxDLQEntry looks up one dead-lettered event by its source event id.
func GetOutboxDLQEntry(dlq DLQReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq repository unavailable"))
			return
		}
		raw := strings.TrimSpace(chi.URLParam(r, "eventId"))
		eventID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id"))
			return
		}
		entry, err := dlq.FindByEventID(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find dead letter"))
			return
		}
		if entry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
			return
		}
		responses.WriteSuccess(w, entry)
	}
}
