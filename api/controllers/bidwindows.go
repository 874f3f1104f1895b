package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/api/middleware"
	"github.com/routepilothq/routepilot-backend/api/responses"
	"github.com/routepilothq/routepilot-backend/internal/bidding"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

func windowIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "windowId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "bid window id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bid window id")
	}
	return id, nil
}

// ListOpenBidWindows returns the organization's open windows. Overdue windows
// are settled before the list is built, so drivers never bid into a window
// that already closed.
func ListOpenBidWindows(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidding service unavailable"))
			return
		}
		windows, err := svc.ListOpenWindows(r.Context(), middleware.OrgIDFromContext(r.Context()), time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"bid_windows": windows})
	}
}

// SubmitBid places the caller's bid on an open window. Instant and emergency
// windows resolve on the spot; the response says whether the caller won.
func SubmitBid(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidding service unavailable"))
			return
		}
		id, err := windowIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SubmitBid(r.Context(), middleware.OrgIDFromContext(r.Context()), middleware.UserIDFromContext(r.Context()), id, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ManagerBidWindowDetail returns a window with its bids, settling it first
// when its close time has passed.
func ManagerBidWindowDetail(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidding service unavailable"))
			return
		}
		id, err := windowIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.GetWindow(r.Context(), middleware.OrgIDFromContext(r.Context()), id, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
