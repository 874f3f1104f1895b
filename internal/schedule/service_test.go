package schedule

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/drivers"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

type fakeScheduleRepo struct {
	routes   []models.Route
	prefs    []models.DriverPreference
	existing []models.Assignment
}

func (f *fakeScheduleRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeScheduleRepo) ListActiveOrganizationIDs(_ context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeScheduleRepo) ListActiveRoutes(_ context.Context, _ uuid.UUID) ([]models.Route, error) {
	return f.routes, nil
}

func (f *fakeScheduleRepo) ListLockedPreferences(_ context.Context, _ uuid.UUID) ([]models.DriverPreference, error) {
	return f.prefs, nil
}

func (f *fakeScheduleRepo) ListAssignmentsInRange(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]models.Assignment, error) {
	return f.existing, nil
}

type fakeAssignCreator struct {
	assignments.Repository
	created []*models.Assignment
}

func (f *fakeAssignCreator) WithTx(tx *gorm.DB) assignments.Repository { return f }

func (f *fakeAssignCreator) Create(_ context.Context, assignment *models.Assignment) (*models.Assignment, error) {
	assignment.ID = uuid.New()
	f.created = append(f.created, assignment)
	return assignment, nil
}

type fakeRoster struct {
	roster []drivers.EligibleDriver
}

func (f *fakeRoster) ListDriversForWeek(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]drivers.EligibleDriver, error) {
	return f.roster, nil
}

type fakeLocker struct {
	locked int64
}

func (f *fakeLocker) LockPreferences(_ context.Context, _ uuid.UUID, _ time.Time) (int64, error) {
	return f.locked, nil
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

func (f *fakeOutbox) countOfType(eventType enums.OutboxEventType) int {
	count := 0
	for _, e := range f.events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
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

type scheduleFixture struct {
	svc     Service
	repo    *fakeScheduleRepo
	creator *fakeAssignCreator
	roster  *fakeRoster
	locker  *fakeLocker
	outbox  *fakeOutbox
	pol     policy.Policy

	orgID       uuid.UUID
	warehouseID uuid.UUID
	weekOf      time.Time
}

func newScheduleFixture(t *testing.T) *scheduleFixture {
	t.Helper()
	pol := testPolicy(t)
	f := &scheduleFixture{
		repo:        &fakeScheduleRepo{},
		creator:     &fakeAssignCreator{},
		roster:      &fakeRoster{},
		locker:      &fakeLocker{},
		outbox:      &fakeOutbox{},
		pol:         pol,
		orgID:       uuid.New(),
		warehouseID: uuid.New(),
		// Monday of the target week.
		weekOf: time.Date(2026, 3, 23, 0, 0, 0, 0, pol.BusinessLocation),
	}
	logg := logger.New(logger.Options{ServiceName: "schedule-test", Output: io.Discard})
	svc, err := NewService(f.repo, f.creator, f.roster, f.locker, fakeTxRunner{}, f.outbox, logg, pol)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *scheduleFixture) addRoute(name string) uuid.UUID {
	id := uuid.New()
	f.repo.routes = append(f.repo.routes, models.Route{
		ID:             id,
		OrganizationID: f.orgID,
		WarehouseID:    f.warehouseID,
		Name:           name,
		IsActive:       true,
	})
	return id
}

func (f *scheduleFixture) addDriver(weekCount int, flagged bool) uuid.UUID {
	id := uuid.New()
	f.roster.roster = append(f.roster.roster, drivers.EligibleDriver{
		UserID:    id,
		Flagged:   flagged,
		WeekCount: weekCount,
	})
	return id
}

func (f *scheduleFixture) addPreference(userID, routeID uuid.UUID, rank int) {
	now := time.Now()
	f.repo.prefs = append(f.repo.prefs, models.DriverPreference{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		UserID:         userID,
		RouteID:        routeID,
		Rank:           rank,
		LockedAt:       &now,
	})
}

func (f *scheduleFixture) countByDriver(userID uuid.UUID) int {
	count := 0
	for _, a := range f.creator.created {
		if a.UserID != nil && *a.UserID == userID {
			count++
		}
	}
	return count
}

func TestGenerateWeek_FillsWeekByRank(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	first := f.addDriver(0, false)
	second := f.addDriver(0, false)
	f.addPreference(first, routeID, 1)
	f.addPreference(second, routeID, 2)

	result, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now())
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if result.Created != 7 || result.Unfilled != 0 {
		t.Fatalf("created=%d unfilled=%d, want 7/0", result.Created, result.Unfilled)
	}
	// Rank 1 runs to the weekly cap, rank 2 picks up the remainder.
	if got := f.countByDriver(first); got != f.pol.WeeklyAssignmentCap {
		t.Fatalf("first driver got %d days, want %d", got, f.pol.WeeklyAssignmentCap)
	}
	if got := f.countByDriver(second); got != 1 {
		t.Fatalf("second driver got %d days, want 1", got)
	}
	for _, a := range f.creator.created {
		if a.Status != enums.AssignmentStatusScheduled {
			t.Fatalf("assignment status = %s, want scheduled", a.Status)
		}
		if a.AssignedAt == nil {
			t.Fatal("assigned_at not set")
		}
	}
	if got := f.outbox.countOfType(enums.EventAssignmentCreated); got != 7 {
		t.Fatalf("assignment_created events = %d, want 7", got)
	}
	if got := f.outbox.countOfType(enums.EventScheduleGenerated); got != 1 {
		t.Fatalf("schedule_generated events = %d, want 1", got)
	}
}

func TestGenerateWeek_SkipsFlaggedDrivers(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	flagged := f.addDriver(0, true)
	backup := f.addDriver(0, false)
	f.addPreference(flagged, routeID, 1)
	f.addPreference(backup, routeID, 2)

	if _, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now()); err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if got := f.countByDriver(flagged); got != 0 {
		t.Fatalf("flagged driver got %d days, want 0", got)
	}
	if got := f.countByDriver(backup); got != 7 {
		t.Fatalf("backup driver got %d days, want 7", got)
	}
}

func TestGenerateWeek_HonorsDriverCapOverride(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	limited := f.addDriver(0, false)
	f.roster.roster[0].WeeklyCap = intPtr(2)
	backup := f.addDriver(0, false)
	f.addPreference(limited, routeID, 1)
	f.addPreference(backup, routeID, 2)

	if _, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now()); err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if got := f.countByDriver(limited); got != 2 {
		t.Fatalf("limited driver got %d days, want 2", got)
	}
	if got := f.countByDriver(backup); got != 5 {
		t.Fatalf("backup driver got %d days, want 5", got)
	}
}

func TestGenerateWeek_WeekCountSeedsCap(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	// Already at the weekly cap before generation runs.
	maxed := f.addDriver(6, false)
	f.addPreference(maxed, routeID, 1)

	result, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now())
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if result.Created != 0 || result.Unfilled != 7 {
		t.Fatalf("created=%d unfilled=%d, want 0/7", result.Created, result.Unfilled)
	}
}

func TestGenerateWeek_OneAssignmentPerDay(t *testing.T) {
	f := newScheduleFixture(t)
	routeA := f.addRoute("downtown-a")
	routeB := f.addRoute("downtown-b")
	only := f.addDriver(0, false)
	f.addPreference(only, routeA, 1)
	f.addPreference(only, routeB, 1)

	result, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now())
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	// The single driver covers one route per day; the other route stays
	// open as an unfilled placeholder. Weekly cap limits the driver to 6.
	if got := f.countByDriver(only); got != 6 {
		t.Fatalf("driver got %d days, want 6", got)
	}
	if result.Unfilled != 8 {
		t.Fatalf("unfilled=%d, want 8", result.Unfilled)
	}
	for _, a := range f.creator.created {
		if a.UserID == nil && a.Status != enums.AssignmentStatusUnfilled {
			t.Fatalf("placeholder status = %s, want unfilled", a.Status)
		}
	}
}

func TestGenerateWeek_CreatesUnfilledPlaceholderWithoutPreferences(t *testing.T) {
	f := newScheduleFixture(t)
	f.addRoute("orphan-route")

	result, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now())
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if result.Created != 0 || result.Unfilled != 7 {
		t.Fatalf("created=%d unfilled=%d, want 0/7", result.Created, result.Unfilled)
	}
	for _, a := range f.creator.created {
		if a.UserID != nil {
			t.Fatal("placeholder carries a driver")
		}
		if a.Status != enums.AssignmentStatusUnfilled {
			t.Fatalf("status = %s, want unfilled", a.Status)
		}
	}
	if got := f.outbox.countOfType(enums.EventAssignmentCreated); got != 0 {
		t.Fatalf("assignment_created events = %d, want 0", got)
	}
}

func TestGenerateWeek_RerunSkipsExistingSlots(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	driverID := f.addDriver(0, false)
	f.addPreference(driverID, routeID, 1)

	if _, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	for _, a := range f.creator.created {
		f.repo.existing = append(f.repo.existing, *a)
	}
	f.creator.created = nil

	result, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Created != 0 || result.Unfilled != 0 {
		t.Fatalf("created=%d unfilled=%d on rerun, want 0/0", result.Created, result.Unfilled)
	}
	if result.Skipped != 7 {
		t.Fatalf("skipped=%d on rerun, want 7", result.Skipped)
	}
	if len(f.creator.created) != 0 {
		t.Fatalf("rerun created %d assignments", len(f.creator.created))
	}
}

func TestGenerateWeek_CancelledSlotIsRefilled(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	driverID := f.addDriver(0, false)
	f.addPreference(driverID, routeID, 1)

	cancelled := models.Assignment{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		RouteID:        routeID,
		WarehouseID:    f.warehouseID,
		Date:           f.weekOf,
		Status:         enums.AssignmentStatusCancelled,
	}
	f.repo.existing = append(f.repo.existing, cancelled)

	result, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now())
	if err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	if result.Created != 7 {
		t.Fatalf("created=%d, want 7: cancelled slot should not block the day", result.Created)
	}
}

func TestGenerateWeek_SummaryEvent(t *testing.T) {
	f := newScheduleFixture(t)
	routeID := f.addRoute("downtown-a")
	f.addRoute("orphan-route")
	driverID := f.addDriver(0, false)
	f.addPreference(driverID, routeID, 1)

	if _, err := f.svc.GenerateWeek(context.Background(), f.orgID, f.weekOf, time.Now()); err != nil {
		t.Fatalf("GenerateWeek: %v", err)
	}
	var summary *payloads.ScheduleGeneratedEvent
	for _, e := range f.outbox.events {
		if e.EventType == enums.EventScheduleGenerated {
			data := e.Data.(payloads.ScheduleGeneratedEvent)
			summary = &data
		}
	}
	if summary == nil {
		t.Fatal("schedule_generated event not emitted")
	}
	if summary.AssignmentsCreated != 6 {
		t.Fatalf("summary created=%d, want 6", summary.AssignmentsCreated)
	}
	if summary.RoutesUnfilled != 8 {
		t.Fatalf("summary unfilled=%d, want 8", summary.RoutesUnfilled)
	}
	wantWeek := bizclock.WeekStart(f.weekOf, f.pol)
	if !summary.WeekStart.Equal(wantWeek) {
		t.Fatalf("summary week start = %s, want %s", summary.WeekStart, wantWeek)
	}
}

func TestLockPreferences_EmitsEvent(t *testing.T) {
	f := newScheduleFixture(t)
	f.locker.locked = 12
	now := time.Date(2026, 3, 19, 15, 0, 0, 0, f.pol.BusinessLocation)

	locked, err := f.svc.LockPreferences(context.Background(), f.orgID, now)
	if err != nil {
		t.Fatalf("LockPreferences: %v", err)
	}
	if locked != 12 {
		t.Fatalf("locked=%d, want 12", locked)
	}
	if got := f.outbox.countOfType(enums.EventPreferencesLocked); got != 1 {
		t.Fatalf("preferences_locked events = %d, want 1", got)
	}
	event := f.outbox.events[len(f.outbox.events)-1].Data.(payloads.PreferencesLockedEvent)
	if event.DriversLocked != 12 {
		t.Fatalf("event drivers locked = %d, want 12", event.DriversLocked)
	}
	// The lock freezes rankings for the week that follows.
	wantWeek := bizclock.WeekStart(now, f.pol).AddDate(0, 0, 7)
	if !event.WeekStart.Equal(wantWeek) {
		t.Fatalf("event week start = %s, want %s", event.WeekStart, wantWeek)
	}
}

func intPtr(v int) *int { return &v }
