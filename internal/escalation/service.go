package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/audit"
	"github.com/routepilothq/routepilot-backend/internal/bidding"
	"github.com/routepilothq/routepilot-backend/internal/lifecycle"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	dbpkg "github.com/routepilothq/routepilot-backend/pkg/db"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

const driverDateIndex = "ux_assignments_driver_date"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reliabilityRecorder interface {
	CheckBidEligibility(ctx context.Context, orgID, userID uuid.UUID, date time.Time, now time.Time) error
	RecordLateCancellationTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error
	RecordNoShowTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID, now time.Time) error
	RecordAutoDropTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service owns everything that pulls a driver off an assignment and lines up
// a replacement: cancels, the auto-drop and no-show sweeps, and manager
// overrides.
type Service interface {
	Cancel(ctx context.Context, input CancelInput, now time.Time) (*CancelResult, error)

	RunAutoDrop(ctx context.Context, now time.Time) (*SweepResult, error)
	RunNoShowDetection(ctx context.Context, now time.Time) (*SweepResult, error)

	Reassign(ctx context.Context, input ReassignInput, now time.Time) (*models.Assignment, error)
	OpenBidding(ctx context.Context, input OpenBiddingInput, now time.Time) (*models.BidWindow, error)
	OpenUrgentBidding(ctx context.Context, input OpenBiddingInput, now time.Time) (*models.BidWindow, error)
}

type service struct {
	repo    assignments.Repository
	bidding bidding.Service
	drivers reliabilityRecorder
	tx      txRunner
	outbox  outboxPublisher
	auditor auditRecorder
	logg    *logger.Logger
	pol     policy.Policy
}

// NewService builds the escalation service.
func NewService(repo assignments.Repository, biddingSvc bidding.Service, drivers reliabilityRecorder, tx txRunner, ob outboxPublisher, auditor auditRecorder, logg *logger.Logger, pol policy.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if biddingSvc == nil {
		return nil, fmt.Errorf("bidding service required")
	}
	if drivers == nil {
		return nil, fmt.Errorf("drivers service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &service{
		repo:    repo,
		bidding: biddingSvc,
		drivers: drivers,
		tx:      tx,
		outbox:  ob,
		auditor: auditor,
		logg:    logg,
		pol:     pol,
	}, nil
}

// Cancel vacates an assignment and opens a replacement window in the same
// transaction. Replaying a cancel that already went through returns the
// current state instead of an error.
func (s *service) Cancel(ctx context.Context, input CancelInput, now time.Time) (*CancelResult, error) {
	assignment, route, err := s.loadAssignment(ctx, input.OrganizationID, input.AssignmentID)
	if err != nil {
		return nil, err
	}

	if assignment.Status == enums.AssignmentStatusCancelled || assignment.Status == enums.AssignmentStatusUnfilled {
		result := &CancelResult{Assignment: *assignment, AlreadyCancelled: true}
		window, err := s.bidding.FindOpenWindow(ctx, input.OrganizationID, input.AssignmentID)
		if err == nil {
			result.Window = window
		} else if pe := pkgerrors.As(err); pe == nil || pe.Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
		return result, nil
	}

	isManager := input.ActorRole != enums.UserRoleDriver
	if !isManager {
		if assignment.UserID == nil || *assignment.UserID != input.ActorUserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "assignment belongs to another driver")
		}
	}

	snap := lifecycle.FromModels(*assignment, assignment.Shift, *route)
	flags := lifecycle.Derive(snap, s.pol, now)
	if !flags.IsCancelable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "assignment can no longer be cancelled")
	}

	late := !isManager && flags.IsLateCancel
	cancelType := enums.CancelTypeDriver
	switch {
	case isManager:
		cancelType = enums.CancelTypeManager
	case late:
		cancelType = enums.CancelTypeLate
	}

	vacatedDriver := *assignment.UserID
	var exclude *uuid.UUID
	if late {
		exclude = &vacatedDriver
	}
	actor := &outbox.ActorRef{UserID: input.ActorUserID, OrgID: &input.OrganizationID, Role: string(input.ActorRole)}

	var window *models.BidWindow
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.VacateGuarded(ctx, assignment.ID, cancelType, now, enums.AssignmentStatusCancelled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vacate assignment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment state changed, re-fetch and retry")
		}
		if late {
			if err := s.drivers.RecordLateCancellationTx(ctx, tx, input.OrganizationID, vacatedDriver); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late cancellation")
			}
		}
		window, _, err = s.bidding.OpenWindowTx(ctx, tx, bidding.OpenWindowInput{
			OrganizationID:    input.OrganizationID,
			AssignmentID:      assignment.ID,
			RouteID:           assignment.RouteID,
			Date:              assignment.Date,
			RouteStartMinutes: route.StartMinutes,
			Trigger:           enums.BidTriggerCancellation,
			ExcludeUserID:     exclude,
			Actor:             actor,
		}, now)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentCancelled,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.AssignmentCancelledEvent{
				AssignmentID:   assignment.ID,
				OrganizationID: input.OrganizationID,
				RouteID:        assignment.RouteID,
				UserID:         &vacatedDriver,
				Date:           assignment.Date,
				CancelType:     cancelType,
				CancelledAt:    now,
				BidWindowID:    &window.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: input.OrganizationID,
		EntityType:     "assignment",
		EntityID:       assignment.ID,
		Action:         "cancel",
		ActorUserID:    &input.ActorUserID,
		Before:         map[string]any{"status": enums.AssignmentStatusScheduled},
		After:          map[string]any{"status": enums.AssignmentStatusCancelled, "cancel_type": cancelType},
	})

	updated, _, err := s.loadAssignment(ctx, input.OrganizationID, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Assignment: *updated, Window: window, LateCancel: late}, nil
}

// RunAutoDrop vacates every scheduled assignment whose confirmation deadline
// has passed. The replacement window opens in the same transaction as the
// vacate so the assignment is never unfilled without a window.
func (s *service) RunAutoDrop(ctx context.Context, now time.Time) (*SweepResult, error) {
	horizon := bizclock.Date(now, s.pol).AddDate(0, 0, 3)
	candidates, err := s.repo.ListUnconfirmedScheduled(ctx, horizon)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unconfirmed assignments")
	}

	result := &SweepResult{Candidates: len(candidates)}
	for i := range candidates {
		assignment := candidates[i].Assignment
		route := candidates[i].Route
		snap := lifecycle.FromModels(assignment, nil, route)
		flags := lifecycle.Derive(snap, s.pol, now)
		if assignment.UserID == nil || !now.After(flags.ConfirmationDeadline) {
			result.Skipped++
			continue
		}
		if err := s.executeAutoDrop(ctx, assignment, route, flags.ConfirmationDeadline, now); err != nil {
			if pe := pkgerrors.As(err); pe != nil && pe.Code() == pkgerrors.CodeStateConflict {
				result.Skipped++
				continue
			}
			s.logg.Error(ctx, "auto-drop failed", err)
			result.Skipped++
			continue
		}
		result.Processed++
	}
	return result, nil
}

func (s *service) executeAutoDrop(ctx context.Context, assignment models.Assignment, route models.Route, deadline, now time.Time) error {
	droppedDriver := *assignment.UserID
	var windowID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Window before vacate: if the window cannot open the assignment
		// stays scheduled and the next sweep retries.
		window, _, err := s.bidding.OpenWindowTx(ctx, tx, bidding.OpenWindowInput{
			OrganizationID:    assignment.OrganizationID,
			AssignmentID:      assignment.ID,
			RouteID:           assignment.RouteID,
			Date:              assignment.Date,
			RouteStartMinutes: route.StartMinutes,
			Trigger:           enums.BidTriggerAutoDrop,
			ExcludeUserID:     &droppedDriver,
		}, now)
		if err != nil {
			return err
		}
		windowID = window.ID

		repo := s.repo.WithTx(tx)
		rows, err := repo.VacateGuarded(ctx, assignment.ID, enums.CancelTypeAutoDrop, now, enums.AssignmentStatusUnfilled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vacate assignment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment state changed")
		}
		if err := s.drivers.RecordAutoDropTx(ctx, tx, assignment.OrganizationID, droppedDriver); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record auto-drop")
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAutoDropExecuted,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Data: payloads.AutoDropExecutedEvent{
				AssignmentID:   assignment.ID,
				OrganizationID: assignment.OrganizationID,
				UserID:         droppedDriver,
				Date:           assignment.Date,
				Deadline:       deadline,
				BidWindowID:    &windowID,
			},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentCancelled,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Data: payloads.AssignmentCancelledEvent{
				AssignmentID:   assignment.ID,
				OrganizationID: assignment.OrganizationID,
				RouteID:        assignment.RouteID,
				UserID:         &droppedDriver,
				Date:           assignment.Date,
				CancelType:     enums.CancelTypeAutoDrop,
				CancelledAt:    now,
				BidWindowID:    &windowID,
			},
		})
	})
	if err != nil {
		return err
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: assignment.OrganizationID,
		EntityType:     "assignment",
		EntityID:       assignment.ID,
		Action:         "auto_drop",
		After:          map[string]any{"status": enums.AssignmentStatusUnfilled, "bid_window_id": windowID},
	})
	return nil
}

// RunNoShowDetection vacates confirmed assignments whose driver never arrived
// by the hard cutoff and opens an emergency window for each.
func (s *service) RunNoShowDetection(ctx context.Context, now time.Time) (*SweepResult, error) {
	dayStart := bizclock.Date(now, s.pol)
	dayEnd := dayStart.AddDate(0, 0, 1)
	candidates, err := s.repo.ListArrivalPending(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list arrival-pending assignments")
	}

	result := &SweepResult{Candidates: len(candidates)}
	for i := range candidates {
		assignment := candidates[i].Assignment
		route := candidates[i].Route
		snap := lifecycle.FromModels(assignment, nil, route)
		flags := lifecycle.Derive(snap, s.pol, now)
		if assignment.UserID == nil || !now.After(flags.ArrivalHardCutoff) {
			result.Skipped++
			continue
		}
		if err := s.executeNoShow(ctx, assignment, route, now); err != nil {
			if pe := pkgerrors.As(err); pe != nil && pe.Code() == pkgerrors.CodeStateConflict {
				result.Skipped++
				continue
			}
			s.logg.Error(ctx, "no-show handling failed", err)
			result.Skipped++
			continue
		}
		result.Processed++
	}
	return result, nil
}

func (s *service) executeNoShow(ctx context.Context, assignment models.Assignment, route models.Route, now time.Time) error {
	missingDriver := *assignment.UserID
	mode := enums.BidWindowModeEmergency
	var windowID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		window, _, err := s.bidding.OpenWindowTx(ctx, tx, bidding.OpenWindowInput{
			OrganizationID:    assignment.OrganizationID,
			AssignmentID:      assignment.ID,
			RouteID:           assignment.RouteID,
			Date:              assignment.Date,
			RouteStartMinutes: route.StartMinutes,
			Trigger:           enums.BidTriggerNoShow,
			Mode:              &mode,
			ExcludeUserID:     &missingDriver,
		}, now)
		if err != nil {
			return err
		}
		windowID = window.ID

		repo := s.repo.WithTx(tx)
		rows, err := repo.VacateGuarded(ctx, assignment.ID, enums.CancelTypeNoShow, now, enums.AssignmentStatusUnfilled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vacate assignment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment state changed")
		}
		if err := s.drivers.RecordNoShowTx(ctx, tx, assignment.OrganizationID, missingDriver, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record no-show")
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNoShowDetected,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Data: payloads.NoShowDetectedEvent{
				AssignmentID:   assignment.ID,
				OrganizationID: assignment.OrganizationID,
				UserID:         missingDriver,
				Date:           assignment.Date,
				DetectedAt:     now,
				BidWindowID:    &windowID,
			},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentCancelled,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Data: payloads.AssignmentCancelledEvent{
				AssignmentID:   assignment.ID,
				OrganizationID: assignment.OrganizationID,
				RouteID:        assignment.RouteID,
				UserID:         &missingDriver,
				Date:           assignment.Date,
				CancelType:     enums.CancelTypeNoShow,
				CancelledAt:    now,
				BidWindowID:    &windowID,
			},
		})
	})
	if err != nil {
		return err
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: assignment.OrganizationID,
		EntityType:     "assignment",
		EntityID:       assignment.ID,
		Action:         "no_show",
		After:          map[string]any{"status": enums.AssignmentStatusUnfilled, "bid_window_id": windowID},
	})
	return nil
}

// Reassign places a specific driver on the assignment directly, closing any
// open bid window.
func (s *service) Reassign(ctx context.Context, input ReassignInput, now time.Time) (*models.Assignment, error) {
	assignment, _, err := s.loadAssignment(ctx, input.OrganizationID, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.drivers.CheckBidEligibility(ctx, input.OrganizationID, input.DriverID, assignment.Date, now); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ReassignGuarded(ctx, input.AssignmentID, input.DriverID, input.ManagerID, now)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, driverDateIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "driver already booked for this date")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reassign")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment cannot be reassigned in its current state")
		}
		if _, err := s.bidding.CloseOpenWindowTx(ctx, tx, input.OrganizationID, input.AssignmentID, now); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentUpdated,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   input.AssignmentID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ManagerID, OrgID: &input.OrganizationID, Role: string(enums.UserRoleManager)},
			Data: payloads.AssignmentUpdatedEvent{
				AssignmentID:   input.AssignmentID,
				OrganizationID: input.OrganizationID,
				UserID:         input.DriverID,
				UpdatedBy:      input.ManagerID,
				Fields:         []string{"user_id", "assigned_by"},
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: input.OrganizationID,
		EntityType:     "assignment",
		EntityID:       input.AssignmentID,
		Action:         "reassign",
		ActorUserID:    &input.ManagerID,
		Before:         map[string]any{"user_id": assignment.UserID},
		After:          map[string]any{"user_id": input.DriverID},
	})

	updated, _, err := s.loadAssignment(ctx, input.OrganizationID, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// OpenBidding opens a replacement window on a vacated assignment on demand.
func (s *service) OpenBidding(ctx context.Context, input OpenBiddingInput, now time.Time) (*models.BidWindow, error) {
	openInput, err := s.managerWindowInput(ctx, input)
	if err != nil {
		return nil, err
	}
	window, _, err := s.bidding.OpenWindow(ctx, *openInput, now)
	if err != nil {
		return nil, err
	}
	return window, nil
}

// OpenUrgentBidding escalates straight to an emergency window, superseding
// any open non-emergency window. Replays converge on the same emergency
// window.
func (s *service) OpenUrgentBidding(ctx context.Context, input OpenBiddingInput, now time.Time) (*models.BidWindow, error) {
	openInput, err := s.managerWindowInput(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.bidding.EscalateToEmergency(ctx, *openInput, now)
}

func (s *service) managerWindowInput(ctx context.Context, input OpenBiddingInput) (*bidding.OpenWindowInput, error) {
	assignment, route, err := s.loadAssignment(ctx, input.OrganizationID, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Status != enums.AssignmentStatusUnfilled && assignment.Status != enums.AssignmentStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "assignment is not awaiting a replacement")
	}
	return &bidding.OpenWindowInput{
		OrganizationID:    input.OrganizationID,
		AssignmentID:      input.AssignmentID,
		RouteID:           assignment.RouteID,
		Date:              assignment.Date,
		RouteStartMinutes: route.StartMinutes,
		Trigger:           enums.BidTriggerManager,
		Actor:             &outbox.ActorRef{UserID: input.ManagerID, OrgID: &input.OrganizationID, Role: string(enums.UserRoleManager)},
	}, nil
}

func (s *service) loadAssignment(ctx context.Context, orgID, id uuid.UUID) (*models.Assignment, *models.Route, error) {
	assignment, route, err := s.repo.FindByIDWithRoute(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}
	return assignment, route, nil
}
