package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/internal/schedule"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

type fakeOrgLister struct {
	ids []uuid.UUID
}

func (f *fakeOrgLister) ListActiveOrganizationIDs(context.Context) ([]uuid.UUID, error) {
	return f.ids, nil
}

type generateCall struct {
	orgID  uuid.UUID
	weekOf time.Time
}

type fakeGenerator struct {
	calls []generateCall
}

func (f *fakeGenerator) GenerateWeek(_ context.Context, orgID uuid.UUID, weekOf time.Time, _ time.Time) (*schedule.GenerateResult, error) {
	f.calls = append(f.calls, generateCall{orgID: orgID, weekOf: weekOf})
	return &schedule.GenerateResult{WeekStart: weekOf, Created: 5}, nil
}

type lockCall struct {
	orgID uuid.UUID
}

type fakePrefLocker struct {
	calls []lockCall
}

func (f *fakePrefLocker) LockPreferences(_ context.Context, orgID uuid.UUID, _ time.Time) (int64, error) {
	f.calls = append(f.calls, lockCall{orgID: orgID})
	return 4, nil
}

func cronTestPolicy(t *testing.T) policy.Policy {
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

func TestWeeklyScheduleJobGeneratesOncePerWeek(t *testing.T) {
	pol := cronTestPolicy(t)
	orgs := &fakeOrgLister{ids: []uuid.UUID{uuid.New(), uuid.New()}}
	generator := &fakeGenerator{}
	jobIface, err := NewWeeklyScheduleJob(WeeklyScheduleJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Orgs:      orgs,
		Generator: generator,
		Policy:    pol,
	})
	if err != nil {
		t.Fatalf("NewWeeklyScheduleJob: %v", err)
	}
	job := jobIface.(*weeklyScheduleJob)

	// Friday morning business time.
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, pol.BusinessLocation)
	job.now = func() time.Time { return now }

	ctx := context.Background()
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(generator.calls) != 2 {
		t.Fatalf("generated for %d orgs, want 2", len(generator.calls))
	}
	wantWeek := bizclock.WeekStart(now, pol).AddDate(0, 0, 7)
	if !generator.calls[0].weekOf.Equal(wantWeek) {
		t.Fatalf("generated week %s, want %s", generator.calls[0].weekOf, wantWeek)
	}

	// Later the same Friday: already generated for the target week.
	now = now.Add(3 * time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(generator.calls) != 2 {
		t.Fatalf("regenerated within the same week: %d calls", len(generator.calls))
	}

	// Next Friday generates again.
	now = now.AddDate(0, 0, 7)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if len(generator.calls) != 4 {
		t.Fatalf("next week generated %d total calls, want 4", len(generator.calls))
	}
}

func TestWeeklyScheduleJobSkipsOffDays(t *testing.T) {
	pol := cronTestPolicy(t)
	generator := &fakeGenerator{}
	jobIface, err := NewWeeklyScheduleJob(WeeklyScheduleJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "cron-test"}),
		Orgs:      &fakeOrgLister{ids: []uuid.UUID{uuid.New()}},
		Generator: generator,
		Policy:    pol,
	})
	if err != nil {
		t.Fatalf("NewWeeklyScheduleJob: %v", err)
	}
	job := jobIface.(*weeklyScheduleJob)
	// Wednesday.
	job.now = func() time.Time {
		return time.Date(2026, 3, 18, 9, 0, 0, 0, pol.BusinessLocation)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(generator.calls) != 0 {
		t.Fatalf("generated on a Wednesday: %d calls", len(generator.calls))
	}
}

func TestPreferenceLockJobLocksOncePerWeek(t *testing.T) {
	pol := cronTestPolicy(t)
	locker := &fakePrefLocker{}
	jobIface, err := NewPreferenceLockJob(PreferenceLockJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Orgs:   &fakeOrgLister{ids: []uuid.UUID{uuid.New()}},
		Locker: locker,
		Policy: pol,
	})
	if err != nil {
		t.Fatalf("NewPreferenceLockJob: %v", err)
	}
	job := jobIface.(*preferenceLockJob)

	// Thursday business time.
	now := time.Date(2026, 3, 19, 9, 0, 0, 0, pol.BusinessLocation)
	job.now = func() time.Time { return now }

	ctx := context.Background()
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(locker.calls) != 1 {
		t.Fatalf("locked %d times, want 1", len(locker.calls))
	}

	now = now.Add(2 * time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(locker.calls) != 1 {
		t.Fatalf("relocked within the same week: %d calls", len(locker.calls))
	}
}
