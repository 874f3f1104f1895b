package assignments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/audit"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/pagination"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

type fakeAssignmentsRepo struct {
	assignments map[uuid.UUID]*models.Assignment
	shifts      map[uuid.UUID]*models.Shift
	routes      map[uuid.UUID]*models.Route
	createErr   error
}

func newFakeAssignmentsRepo() *fakeAssignmentsRepo {
	return &fakeAssignmentsRepo{
		assignments: make(map[uuid.UUID]*models.Assignment),
		shifts:      make(map[uuid.UUID]*models.Shift),
		routes:      make(map[uuid.UUID]*models.Route),
	}
}

func (f *fakeAssignmentsRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeAssignmentsRepo) Create(_ context.Context, assignment *models.Assignment) (*models.Assignment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	f.assignments[assignment.ID] = assignment
	return assignment, nil
}

func (f *fakeAssignmentsRepo) FindByID(_ context.Context, orgID, id uuid.UUID) (*models.Assignment, error) {
	a, ok := f.assignments[id]
	if !ok || a.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (f *fakeAssignmentsRepo) FindByIDWithRoute(ctx context.Context, orgID, id uuid.UUID) (*models.Assignment, *models.Route, error) {
	a, err := f.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	out := *a
	out.Shift = f.shifts[id]
	route, ok := f.routes[a.RouteID]
	if !ok {
		return nil, nil, gorm.ErrRecordNotFound
	}
	return &out, route, nil
}

func (f *fakeAssignmentsRepo) ListByDriver(_ context.Context, orgID, userID uuid.UUID, _ pagination.Params, _, _ *time.Time) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range f.assignments {
		if a.OrganizationID == orgID && a.UserID != nil && *a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAssignmentsRepo) ListByRouteDate(_ context.Context, orgID, routeID uuid.UUID, date time.Time) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range f.assignments {
		if a.OrganizationID == orgID && a.RouteID == routeID && a.Date.Equal(date) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAssignmentsRepo) ListRoutesByIDs(_ context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Route, error) {
	out := make(map[uuid.UUID]models.Route, len(ids))
	for _, id := range ids {
		if route, ok := f.routes[id]; ok && route.OrganizationID == orgID {
			out[id] = *route
		}
	}
	return out, nil
}

func (f *fakeAssignmentsRepo) ConfirmGuarded(_ context.Context, id, userID uuid.UUID, at time.Time) (int64, error) {
	a, ok := f.assignments[id]
	if !ok || a.Status != enums.AssignmentStatusScheduled || a.UserID == nil || *a.UserID != userID || a.ConfirmedAt != nil {
		return 0, nil
	}
	a.ConfirmedAt = &at
	return 1, nil
}

func (f *fakeAssignmentsRepo) ActivateGuarded(_ context.Context, id, userID uuid.UUID) (int64, error) {
	a, ok := f.assignments[id]
	if !ok || a.Status != enums.AssignmentStatusScheduled || a.UserID == nil || *a.UserID != userID || a.ConfirmedAt == nil {
		return 0, nil
	}
	a.Status = enums.AssignmentStatusActive
	return 1, nil
}

func (f *fakeAssignmentsRepo) CompleteGuarded(_ context.Context, id, userID uuid.UUID) (int64, error) {
	a, ok := f.assignments[id]
	if !ok || a.Status != enums.AssignmentStatusActive || a.UserID == nil || *a.UserID != userID {
		return 0, nil
	}
	a.Status = enums.AssignmentStatusCompleted
	return 1, nil
}

func (f *fakeAssignmentsRepo) VacateGuarded(_ context.Context, id uuid.UUID, cancelType enums.CancelType, at time.Time, toStatus enums.AssignmentStatus) (int64, error) {
	a, ok := f.assignments[id]
	if !ok || (a.Status != enums.AssignmentStatusScheduled && a.Status != enums.AssignmentStatusActive) {
		return 0, nil
	}
	a.Status = toStatus
	a.CancelType = &cancelType
	a.CancelledAt = &at
	if toStatus == enums.AssignmentStatusUnfilled {
		a.UserID = nil
		a.ConfirmedAt = nil
	}
	return 1, nil
}

func (f *fakeAssignmentsRepo) ClaimGuarded(_ context.Context, id, winnerID uuid.UUID, at time.Time) (int64, error) {
	a, ok := f.assignments[id]
	if !ok || (a.Status != enums.AssignmentStatusUnfilled && a.Status != enums.AssignmentStatusCancelled) {
		return 0, nil
	}
	a.Status = enums.AssignmentStatusScheduled
	a.UserID = &winnerID
	a.ConfirmedAt = &at
	a.CancelType = nil
	a.CancelledAt = nil
	return 1, nil
}

func (f *fakeAssignmentsRepo) ReassignGuarded(_ context.Context, id, driverID, managerID uuid.UUID, at time.Time) (int64, error) {
	a, ok := f.assignments[id]
	if !ok {
		return 0, nil
	}
	a.UserID = &driverID
	a.AssignedBy = &managerID
	a.AssignedAt = &at
	return 1, nil
}

func (f *fakeAssignmentsRepo) CreateShift(_ context.Context, shift *models.Shift) (*models.Shift, error) {
	if shift.ID == uuid.Nil {
		shift.ID = uuid.New()
	}
	f.shifts[shift.AssignmentID] = shift
	return shift, nil
}

func (f *fakeAssignmentsRepo) FindShiftByAssignment(_ context.Context, orgID, assignmentID uuid.UUID) (*models.Shift, error) {
	s, ok := f.shifts[assignmentID]
	if !ok || s.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (f *fakeAssignmentsRepo) StartShiftGuarded(_ context.Context, assignmentID uuid.UUID, parcelsStart int, at time.Time) (int64, error) {
	s, ok := f.shifts[assignmentID]
	if !ok || s.StartedAt != nil {
		return 0, nil
	}
	s.ParcelsStart = &parcelsStart
	s.StartedAt = &at
	return 1, nil
}

func (f *fakeAssignmentsRepo) CompleteShiftGuarded(_ context.Context, assignmentID uuid.UUID, delivered, returned int, at, editableUntil time.Time) (int64, error) {
	s, ok := f.shifts[assignmentID]
	if !ok || s.StartedAt == nil || s.CompletedAt != nil {
		return 0, nil
	}
	s.ParcelsDelivered = &delivered
	s.ParcelsReturned = &returned
	s.CompletedAt = &at
	s.EditableUntil = &editableUntil
	return 1, nil
}

func (f *fakeAssignmentsRepo) UpdateShift(_ context.Context, orgID, assignmentID uuid.UUID, updates map[string]any) (int64, error) {
	s, ok := f.shifts[assignmentID]
	if !ok || s.OrganizationID != orgID {
		return 0, nil
	}
	if v, ok := updates["parcels_start"]; ok {
		n := v.(int)
		s.ParcelsStart = &n
	}
	if v, ok := updates["parcels_delivered"]; ok {
		n := v.(int)
		s.ParcelsDelivered = &n
	}
	if v, ok := updates["parcels_returned"]; ok {
		n := v.(int)
		s.ParcelsReturned = &n
	}
	return 1, nil
}

func (f *fakeAssignmentsRepo) ListUnconfirmedScheduled(_ context.Context, _ time.Time) ([]AssignmentWithRoute, error) {
	return nil, nil
}

func (f *fakeAssignmentsRepo) ListArrivalPending(_ context.Context, _, _ time.Time) ([]AssignmentWithRoute, error) {
	return nil, nil
}

func testPolicy(t *testing.T) policy.Policy {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return policy.Policy{
		BusinessLocation:          loc,
		ConfirmationOpenDays:      7,
		ConfirmationDeadlineHours: 48,
		InstantCutoffHours:        24,
		DefaultShiftStartHour:     7,
		ArrivalHardCutoffHour:     9,
		ShiftEditableHours:        24,
		EmergencyPayBonusPercent:  20,
		ScoreWeightHealth:         0.45,
		ScoreWeightFamiliarity:    0.25,
		ScoreWeightTenure:         0.15,
		ScoreWeightPreference:     0.15,
		HealthScoreCap:            100,
		FamiliarityCap:            50,
		TenureMonthsCap:           24,
		PreferenceTopN:            3,
		WeeklyAssignmentCap:       6,
	}
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeMetrics struct {
	onTimeConfirms int
	completions    int
}

func (f *fakeMetrics) RecordOnTimeConfirmationTx(_ context.Context, _ *gorm.DB, _, _ uuid.UUID) error {
	f.onTimeConfirms++
	return nil
}

func (f *fakeMetrics) RecordCompletionTx(_ context.Context, _ *gorm.DB, _, _, _ uuid.UUID) error {
	f.completions++
	return nil
}

type fakeAuditor struct {
	entries []audit.Entry
}

func (f *fakeAuditor) Record(_ context.Context, entry audit.Entry) {
	f.entries = append(f.entries, entry)
}

type serviceFixture struct {
	svc     Service
	repo    *fakeAssignmentsRepo
	outbox  *fakeOutbox
	metrics *fakeMetrics
	auditor *fakeAuditor
	pol     policy.Policy

	orgID    uuid.UUID
	driverID uuid.UUID
	routeID  uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:     newFakeAssignmentsRepo(),
		outbox:   &fakeOutbox{},
		metrics:  &fakeMetrics{},
		auditor:  &fakeAuditor{},
		pol:      testPolicy(t),
		orgID:    uuid.New(),
		driverID: uuid.New(),
		routeID:  uuid.New(),
	}
	svc, err := NewService(f.repo, fakeTxRunner{}, f.outbox, f.metrics, f.auditor, f.pol)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	f.repo.routes[f.routeID] = &models.Route{ID: f.routeID, OrganizationID: f.orgID}
	return f
}

// seedAssignment books the fixture driver on 2026-03-20, a CDT business day.
// The default shift start is 07:00, so the confirmation deadline lands at
// 2026-03-18 07:00 CDT.
func (f *serviceFixture) seedAssignment(t *testing.T) *models.Assignment {
	t.Helper()
	date := time.Date(2026, 3, 20, 0, 0, 0, 0, f.pol.BusinessLocation)
	a := &models.Assignment{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		RouteID:        f.routeID,
		WarehouseID:    uuid.New(),
		Date:           date,
		UserID:         &f.driverID,
		Status:         enums.AssignmentStatusScheduled,
	}
	f.repo.assignments[a.ID] = a
	return a
}

func (f *serviceFixture) shiftStart() time.Time {
	return time.Date(2026, 3, 20, 7, 0, 0, 0, f.pol.BusinessLocation)
}

func TestConfirm_InsideWindow(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	now := f.shiftStart().Add(-36 * time.Hour)

	detail, err := f.svc.Confirm(context.Background(), f.orgID, f.driverID, a.ID, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if detail.Assignment.ConfirmedAt == nil || !detail.Assignment.ConfirmedAt.Equal(now) {
		t.Fatalf("expected confirmed_at %v, got %v", now, detail.Assignment.ConfirmedAt)
	}
	if f.metrics.onTimeConfirms != 1 {
		t.Fatalf("expected 1 on-time confirmation recorded, got %d", f.metrics.onTimeConfirms)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventAssignmentConfirmed {
		t.Fatalf("expected assignment_confirmed event, got %+v", f.outbox.events)
	}
}

func TestConfirm_ExactlyAtDeadline(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	deadline := f.shiftStart().Add(-48 * time.Hour)

	if _, err := f.svc.Confirm(context.Background(), f.orgID, f.driverID, a.ID, deadline); err != nil {
		t.Fatalf("Confirm at deadline should succeed: %v", err)
	}
}

func TestConfirm_AfterDeadline(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	now := f.shiftStart().Add(-48 * time.Hour).Add(time.Second)

	_, err := f.svc.Confirm(context.Background(), f.orgID, f.driverID, a.ID, now)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	if f.metrics.onTimeConfirms != 0 {
		t.Fatalf("no confirmation should be recorded, got %d", f.metrics.onTimeConfirms)
	}
}

func TestConfirm_AlreadyConfirmedIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	confirmed := f.shiftStart().Add(-72 * time.Hour)
	a.ConfirmedAt = &confirmed
	now := f.shiftStart().Add(-36 * time.Hour)

	detail, err := f.svc.Confirm(context.Background(), f.orgID, f.driverID, a.ID, now)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !detail.Assignment.ConfirmedAt.Equal(confirmed) {
		t.Fatalf("confirmed_at should be unchanged, got %v", detail.Assignment.ConfirmedAt)
	}
	if f.metrics.onTimeConfirms != 0 || len(f.outbox.events) != 0 {
		t.Fatalf("replay must not record or emit anything")
	}
}

func TestConfirm_WrongDriver(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	now := f.shiftStart().Add(-36 * time.Hour)

	_, err := f.svc.Confirm(context.Background(), f.orgID, uuid.New(), a.ID, now)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestConfirm_CrossOrgIsNotFound(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	now := f.shiftStart().Add(-36 * time.Hour)

	_, err := f.svc.Confirm(context.Background(), uuid.New(), f.driverID, a.ID, now)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCreate_DuplicateDriverDate(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.createErr = errors.New(`ERROR: duplicate key value violates unique constraint "ux_assignments_driver_date" (SQLSTATE 23505)`)

	_, err := f.svc.Create(context.Background(), CreateInput{
		OrganizationID: f.orgID,
		RouteID:        f.routeID,
		WarehouseID:    uuid.New(),
		Date:           time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		UserID:         &f.driverID,
		AssignedBy:     uuid.New(),
	})
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestArrive_ActivatesAndCreatesShift(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	confirmed := f.shiftStart().Add(-72 * time.Hour)
	a.ConfirmedAt = &confirmed
	now := time.Date(2026, 3, 20, 6, 30, 0, 0, f.pol.BusinessLocation)

	detail, err := f.svc.Arrive(context.Background(), f.orgID, f.driverID, a.ID, now)
	if err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	if detail.Assignment.Status != enums.AssignmentStatusActive {
		t.Fatalf("expected active, got %s", detail.Assignment.Status)
	}
	if detail.Shift == nil || !detail.Shift.ArrivedAt.Equal(now) {
		t.Fatalf("expected shift with arrived_at %v, got %+v", now, detail.Shift)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventAssignmentUpdated {
		t.Fatalf("expected assignment_updated event, got %+v", f.outbox.events)
	}
}

func TestArrive_ReplayReturnsExistingShift(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	confirmed := f.shiftStart().Add(-72 * time.Hour)
	a.ConfirmedAt = &confirmed
	now := time.Date(2026, 3, 20, 6, 30, 0, 0, f.pol.BusinessLocation)

	if _, err := f.svc.Arrive(context.Background(), f.orgID, f.driverID, a.ID, now); err != nil {
		t.Fatalf("first Arrive: %v", err)
	}
	detail, err := f.svc.Arrive(context.Background(), f.orgID, f.driverID, a.ID, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("second Arrive: %v", err)
	}
	if !detail.Shift.ArrivedAt.Equal(now) {
		t.Fatalf("replay must keep original arrival time, got %v", detail.Shift.ArrivedAt)
	}
	if len(f.outbox.events) != 1 {
		t.Fatalf("replay must not emit, got %d events", len(f.outbox.events))
	}
}

func TestArrive_Unconfirmed(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	now := time.Date(2026, 3, 20, 6, 30, 0, 0, f.pol.BusinessLocation)

	_, err := f.svc.Arrive(context.Background(), f.orgID, f.driverID, a.ID, now)
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestCompleteFlow(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	confirmed := f.shiftStart().Add(-72 * time.Hour)
	a.ConfirmedAt = &confirmed
	ctx := context.Background()

	arriveAt := time.Date(2026, 3, 20, 6, 30, 0, 0, f.pol.BusinessLocation)
	if _, err := f.svc.Arrive(ctx, f.orgID, f.driverID, a.ID, arriveAt); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	startAt := arriveAt.Add(15 * time.Minute)
	if _, err := f.svc.StartInventory(ctx, f.orgID, f.driverID, a.ID, StartInventoryInput{ParcelsStart: 120}, startAt); err != nil {
		t.Fatalf("StartInventory: %v", err)
	}

	completeAt := startAt.Add(8 * time.Hour)
	detail, err := f.svc.Complete(ctx, f.orgID, f.driverID, a.ID, CompleteInput{ParcelsDelivered: 117, ParcelsReturned: 3}, completeAt)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if detail.Assignment.Status != enums.AssignmentStatusCompleted {
		t.Fatalf("expected completed, got %s", detail.Assignment.Status)
	}
	if detail.Shift.ParcelsDelivered == nil || *detail.Shift.ParcelsDelivered != 117 {
		t.Fatalf("expected 117 delivered, got %+v", detail.Shift.ParcelsDelivered)
	}
	wantEditable := completeAt.Add(24 * time.Hour)
	if detail.Shift.EditableUntil == nil || !detail.Shift.EditableUntil.Equal(wantEditable) {
		t.Fatalf("expected editable_until %v, got %v", wantEditable, detail.Shift.EditableUntil)
	}
	if f.metrics.completions != 1 {
		t.Fatalf("expected 1 completion recorded, got %d", f.metrics.completions)
	}
	last := f.outbox.events[len(f.outbox.events)-1]
	if last.EventType != enums.EventAssignmentCompleted {
		t.Fatalf("expected assignment_completed last, got %s", last.EventType)
	}
}

func TestComplete_BeforeInventoryStart(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	confirmed := f.shiftStart().Add(-72 * time.Hour)
	a.ConfirmedAt = &confirmed
	ctx := context.Background()

	arriveAt := time.Date(2026, 3, 20, 6, 30, 0, 0, f.pol.BusinessLocation)
	if _, err := f.svc.Arrive(ctx, f.orgID, f.driverID, a.ID, arriveAt); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	_, err := f.svc.Complete(ctx, f.orgID, f.driverID, a.ID, CompleteInput{ParcelsDelivered: 1}, arriveAt.Add(time.Hour))
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestEditShift_ManagerCorrection(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	managerID := uuid.New()
	started := time.Date(2026, 3, 20, 7, 0, 0, 0, f.pol.BusinessLocation)
	delivered := 100
	f.repo.shifts[a.ID] = &models.Shift{
		ID:               uuid.New(),
		AssignmentID:     a.ID,
		OrganizationID:   f.orgID,
		ArrivedAt:        started,
		StartedAt:        &started,
		ParcelsDelivered: &delivered,
	}

	newDelivered := 104
	detail, err := f.svc.EditShift(context.Background(), f.orgID, managerID, a.ID, ShiftEditInput{ParcelsDelivered: &newDelivered}, started.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("EditShift: %v", err)
	}
	if detail.Shift.ParcelsDelivered == nil || *detail.Shift.ParcelsDelivered != 104 {
		t.Fatalf("expected 104 delivered, got %+v", detail.Shift.ParcelsDelivered)
	}
	if len(f.auditor.entries) != 1 || f.auditor.entries[0].Action != "manager_edit" {
		t.Fatalf("expected manager_edit audit entry, got %+v", f.auditor.entries)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventAssignmentUpdated {
		t.Fatalf("expected assignment_updated event, got %+v", f.outbox.events)
	}
}

func TestListForDriver_DerivesFlagsPerRow(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)
	now := f.shiftStart().Add(-36 * time.Hour)

	details, err := f.svc.ListForDriver(context.Background(), f.orgID, f.driverID, pagination.Params{Limit: 10}, nil, nil, now)
	if err != nil {
		t.Fatalf("ListForDriver: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("expected 1 detail, got %d", len(details))
	}
	detail := details[0]
	if detail.Assignment.ID != a.ID {
		t.Fatalf("unexpected assignment %s", detail.Assignment.ID)
	}
	if !detail.Flags.IsConfirmable {
		t.Fatal("expected confirmable inside the window")
	}
	if detail.Flags.ShiftStartsAt.IsZero() {
		t.Fatal("expected shift start derived from route")
	}
}

func TestEditShift_NoFields(t *testing.T) {
	f := newServiceFixture(t)
	a := f.seedAssignment(t)

	_, err := f.svc.EditShift(context.Background(), f.orgID, uuid.New(), a.ID, ShiftEditInput{}, time.Now())
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
