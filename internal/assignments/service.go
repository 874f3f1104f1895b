package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/audit"
	"github.com/routepilothq/routepilot-backend/internal/lifecycle"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	dbpkg "github.com/routepilothq/routepilot-backend/pkg/db"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
	"github.com/routepilothq/routepilot-backend/pkg/pagination"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

const driverDateIndex = "ux_assignments_driver_date"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type metricsRecorder interface {
	RecordOnTimeConfirmationTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error
	RecordCompletionTx(ctx context.Context, tx *gorm.DB, orgID, userID, routeID uuid.UUID) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service owns the driver-facing assignment transitions and manager shift
// corrections.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Assignment, error)
	Get(ctx context.Context, orgID, id uuid.UUID, now time.Time) (*Detail, error)
	ListForDriver(ctx context.Context, orgID, userID uuid.UUID, params pagination.Params, from, to *time.Time, now time.Time) ([]Detail, error)

	Confirm(ctx context.Context, orgID, userID, id uuid.UUID, now time.Time) (*Detail, error)
	Arrive(ctx context.Context, orgID, userID, id uuid.UUID, now time.Time) (*Detail, error)
	StartInventory(ctx context.Context, orgID, userID, id uuid.UUID, input StartInventoryInput, now time.Time) (*Detail, error)
	Complete(ctx context.Context, orgID, userID, id uuid.UUID, input CompleteInput, now time.Time) (*Detail, error)

	EditShift(ctx context.Context, orgID, managerID, id uuid.UUID, input ShiftEditInput, now time.Time) (*Detail, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics metricsRecorder
	auditor auditRecorder
	pol     policy.Policy
}

// NewService builds the assignments service.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, metrics metricsRecorder, auditor auditRecorder, pol policy.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics recorder required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &service{repo: repo, tx: tx, outbox: ob, metrics: metrics, auditor: auditor, pol: pol}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Assignment, error) {
	if input.OrganizationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	if input.RouteID == uuid.Nil || input.WarehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route and warehouse required")
	}
	if input.Date.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date required")
	}

	now := time.Now()
	assignment := &models.Assignment{
		OrganizationID: input.OrganizationID,
		RouteID:        input.RouteID,
		WarehouseID:    input.WarehouseID,
		Date:           bizclock.Date(input.Date, s.pol),
		UserID:         input.UserID,
		Status:         enums.AssignmentStatusScheduled,
		AssignedBy:     &input.AssignedBy,
	}
	if input.UserID != nil {
		assignment.AssignedAt = &now
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, assignment); err != nil {
			if dbpkg.IsUniqueViolation(err, driverDateIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "driver already booked for this date")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentCreated,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.AssignedBy, OrgID: &input.OrganizationID},
			Data: payloads.AssignmentCreatedEvent{
				AssignmentID:   assignment.ID,
				OrganizationID: assignment.OrganizationID,
				RouteID:        assignment.RouteID,
				UserID:         assignment.UserID,
				Date:           assignment.Date,
				AssignedBy:     input.AssignedBy.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *service) Get(ctx context.Context, orgID, id uuid.UUID, now time.Time) (*Detail, error) {
	return s.loadDetail(ctx, s.repo, orgID, id, now)
}

// ListForDriver derives the legal transitions for every row at read time so
// the client renders exactly what a subsequent mutation would enforce.
func (s *service) ListForDriver(ctx context.Context, orgID, userID uuid.UUID, params pagination.Params, from, to *time.Time, now time.Time) ([]Detail, error) {
	rows, err := s.repo.ListByDriver(ctx, orgID, userID, params, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}

	routeIDs := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.RouteID]; ok {
			continue
		}
		seen[row.RouteID] = struct{}{}
		routeIDs = append(routeIDs, row.RouteID)
	}
	routes, err := s.repo.ListRoutesByIDs(ctx, orgID, routeIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load routes")
	}

	details := make([]Detail, 0, len(rows))
	for _, row := range rows {
		route := routes[row.RouteID]
		details = append(details, Detail{
			Assignment: row,
			Shift:      row.Shift,
			Flags:      lifecycle.Derive(lifecycle.FromModels(row, row.Shift, route), s.pol, now),
		})
	}
	return details, nil
}

// Confirm is idempotent: re-confirming an already-confirmed assignment
// returns the current state without touching counters.
func (s *service) Confirm(ctx context.Context, orgID, userID, id uuid.UUID, now time.Time) (*Detail, error) {
	detail, err := s.loadDriverDetail(ctx, orgID, userID, id, now)
	if err != nil {
		return nil, err
	}
	if detail.Assignment.ConfirmedAt != nil {
		return detail, nil
	}
	if !detail.Flags.IsConfirmable {
		if now.After(detail.Flags.ConfirmationDeadline) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "confirmation window closed")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "assignment is not confirmable")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ConfirmGuarded(ctx, id, userID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm assignment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment state changed, re-fetch and retry")
		}
		if err := s.metrics.RecordOnTimeConfirmationTx(ctx, tx, orgID, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record confirmation")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentConfirmed,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   id,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: userID, OrgID: &orgID, Role: string(enums.UserRoleDriver)},
			Data: payloads.AssignmentConfirmedEvent{
				AssignmentID:   id,
				OrganizationID: orgID,
				RouteID:        detail.Assignment.RouteID,
				UserID:         userID,
				Date:           detail.Assignment.Date,
				ConfirmedAt:    now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		EntityType:     "assignment",
		EntityID:       id,
		Action:         "confirm",
		ActorUserID:    &userID,
		Before:         map[string]any{"confirmed_at": nil},
		After:          map[string]any{"confirmed_at": now},
	})
	return s.loadDetail(ctx, s.repo, orgID, id, now)
}

func (s *service) Arrive(ctx context.Context, orgID, userID, id uuid.UUID, now time.Time) (*Detail, error) {
	detail, err := s.loadDriverDetail(ctx, orgID, userID, id, now)
	if err != nil {
		return nil, err
	}
	if detail.Shift != nil {
		return detail, nil
	}
	if !detail.Flags.IsArrivable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "arrival is not open for this assignment")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.ActivateGuarded(ctx, id, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate assignment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment state changed, re-fetch and retry")
		}
		shift := &models.Shift{
			AssignmentID:   id,
			OrganizationID: orgID,
			ArrivedAt:      now,
		}
		if _, err := repo.CreateShift(ctx, shift); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shift")
		}
		return s.emitUpdated(ctx, tx, orgID, userID, detail.Assignment, []string{"arrived_at"})
	})
	if err != nil {
		return nil, err
	}
	return s.loadDetail(ctx, s.repo, orgID, id, now)
}

func (s *service) StartInventory(ctx context.Context, orgID, userID, id uuid.UUID, input StartInventoryInput, now time.Time) (*Detail, error) {
	if input.ParcelsStart < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "parcel count cannot be negative")
	}
	detail, err := s.loadDriverDetail(ctx, orgID, userID, id, now)
	if err != nil {
		return nil, err
	}
	if !detail.Flags.IsStartable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shift is not ready for inventory start")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.StartShiftGuarded(ctx, id, input.ParcelsStart, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start shift inventory")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shift inventory already started")
		}
		return s.emitUpdated(ctx, tx, orgID, userID, detail.Assignment, []string{"parcels_start", "started_at"})
	})
	if err != nil {
		return nil, err
	}
	return s.loadDetail(ctx, s.repo, orgID, id, now)
}

func (s *service) Complete(ctx context.Context, orgID, userID, id uuid.UUID, input CompleteInput, now time.Time) (*Detail, error) {
	if input.ParcelsDelivered < 0 || input.ParcelsReturned < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "parcel counts cannot be negative")
	}
	detail, err := s.loadDriverDetail(ctx, orgID, userID, id, now)
	if err != nil {
		return nil, err
	}
	if !detail.Flags.IsCompletable {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shift is not ready for completion")
	}

	editableUntil := now.Add(time.Duration(s.pol.ShiftEditableHours) * time.Hour)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.CompleteShiftGuarded(ctx, id, input.ParcelsDelivered, input.ParcelsReturned, now, editableUntil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete shift")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shift already completed or not started")
		}
		rows, err = repo.CompleteGuarded(ctx, id, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete assignment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment state changed, re-fetch and retry")
		}
		if err := s.metrics.RecordCompletionTx(ctx, tx, orgID, userID, detail.Assignment.RouteID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record completion")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentCompleted,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   id,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: userID, OrgID: &orgID, Role: string(enums.UserRoleDriver)},
			Data: payloads.AssignmentCompletedEvent{
				AssignmentID:     id,
				OrganizationID:   orgID,
				RouteID:          detail.Assignment.RouteID,
				UserID:           userID,
				Date:             detail.Assignment.Date,
				ParcelsDelivered: input.ParcelsDelivered,
				ParcelsReturned:  input.ParcelsReturned,
				CompletedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		EntityType:     "assignment",
		EntityID:       id,
		Action:         "complete",
		ActorUserID:    &userID,
		After: map[string]any{
			"parcels_delivered": input.ParcelsDelivered,
			"parcels_returned":  input.ParcelsReturned,
			"completed_at":      now,
		},
	})
	return s.loadDetail(ctx, s.repo, orgID, id, now)
}

// EditShift lets a manager correct recorded shift data, including after the
// shift's editable horizon has passed.
func (s *service) EditShift(ctx context.Context, orgID, managerID, id uuid.UUID, input ShiftEditInput, now time.Time) (*Detail, error) {
	updates := map[string]any{}
	fields := []string{}
	if input.ParcelsStart != nil {
		if *input.ParcelsStart < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "parcel count cannot be negative")
		}
		updates["parcels_start"] = *input.ParcelsStart
		fields = append(fields, "parcels_start")
	}
	if input.ParcelsDelivered != nil {
		if *input.ParcelsDelivered < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "parcel count cannot be negative")
		}
		updates["parcels_delivered"] = *input.ParcelsDelivered
		fields = append(fields, "parcels_delivered")
	}
	if input.ParcelsReturned != nil {
		if *input.ParcelsReturned < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "parcel count cannot be negative")
		}
		updates["parcels_returned"] = *input.ParcelsReturned
		fields = append(fields, "parcels_returned")
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no shift fields to update")
	}

	detail, err := s.loadDetail(ctx, s.repo, orgID, id, now)
	if err != nil {
		return nil, err
	}
	if detail.Shift == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "assignment has no shift record")
	}
	before := *detail.Shift

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateShift(ctx, orgID, id, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shift")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shift no longer exists")
		}
		userID := uuid.Nil
		if detail.Assignment.UserID != nil {
			userID = *detail.Assignment.UserID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentUpdated,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   id,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: managerID, OrgID: &orgID, Role: string(enums.UserRoleManager)},
			Data: payloads.AssignmentUpdatedEvent{
				AssignmentID:   id,
				OrganizationID: orgID,
				UserID:         userID,
				UpdatedBy:      managerID,
				Fields:         fields,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.loadDetail(ctx, s.repo, orgID, id, now)
	if err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		EntityType:     "shift",
		EntityID:       id,
		Action:         "manager_edit",
		ActorUserID:    &managerID,
		Before:         before,
		After:          updated.Shift,
	})
	return updated, nil
}

func (s *service) emitUpdated(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID, assignment models.Assignment, fields []string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAssignmentUpdated,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignment.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: userID, OrgID: &orgID, Role: string(enums.UserRoleDriver)},
		Data: payloads.AssignmentUpdatedEvent{
			AssignmentID:   assignment.ID,
			OrganizationID: orgID,
			UserID:         userID,
			UpdatedBy:      userID,
			Fields:         fields,
		},
	})
}

// loadDriverDetail resolves the assignment for a driver actor. A missing row
// and a cross-organization row are both NOT_FOUND; another driver's row in
// the same organization is FORBIDDEN.
func (s *service) loadDriverDetail(ctx context.Context, orgID, userID, id uuid.UUID, now time.Time) (*Detail, error) {
	detail, err := s.loadDetail(ctx, s.repo, orgID, id, now)
	if err != nil {
		return nil, err
	}
	if detail.Assignment.UserID == nil || *detail.Assignment.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "assignment belongs to another driver")
	}
	return detail, nil
}

func (s *service) loadDetail(ctx context.Context, repo Repository, orgID, id uuid.UUID, now time.Time) (*Detail, error) {
	assignment, route, err := repo.FindByIDWithRoute(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}
	snap := lifecycle.FromModels(*assignment, assignment.Shift, *route)
	return &Detail{
		Assignment: *assignment,
		Shift:      assignment.Shift,
		Flags:      lifecycle.Derive(snap, s.pol, now),
	}, nil
}
