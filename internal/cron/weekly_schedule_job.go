package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/routepilothq/routepilot-backend/internal/schedule"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

// Generation runs on Friday business time so the board is out before the
// confirmation window for Monday opens.
const scheduleGenerationDay = time.Friday

type orgLister interface {
	ListActiveOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
}

type weekGenerator interface {
	GenerateWeek(ctx context.Context, orgID uuid.UUID, weekOf time.Time, now time.Time) (*schedule.GenerateResult, error)
}

// WeeklyScheduleJobParams configure next week's board generation.
type WeeklyScheduleJobParams struct {
	Logger    *logger.Logger
	Orgs      orgLister
	Generator weekGenerator
	Policy    policy.Policy
}

// NewWeeklyScheduleJob builds the cron job that generates next week's
// assignments for every active organization.
func NewWeeklyScheduleJob(params WeeklyScheduleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orgs == nil {
		return nil, fmt.Errorf("organization lister required")
	}
	if params.Generator == nil {
		return nil, fmt.Errorf("schedule generator required")
	}
	if err := params.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &weeklyScheduleJob{
		logg:      params.Logger,
		orgs:      params.Orgs,
		generator: params.Generator,
		pol:       params.Policy,
		now:       time.Now,
	}, nil
}

type weeklyScheduleJob struct {
	logg      *logger.Logger
	orgs      orgLister
	generator weekGenerator
	pol       policy.Policy
	generated time.Time
	now       func() time.Time
}

func (j *weeklyScheduleJob) Name() string { return "weekly-schedule" }

func (j *weeklyScheduleJob) Interval() time.Duration { return time.Hour }

func (j *weeklyScheduleJob) Run(ctx context.Context) error {
	now := j.now()
	target := bizclock.WeekStart(now, j.pol).AddDate(0, 0, 7)
	if bizclock.Date(now, j.pol).Weekday() != scheduleGenerationDay {
		return nil
	}
	if j.generated.Equal(target) {
		return nil
	}

	orgIDs, err := j.orgs.ListActiveOrganizationIDs(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	var errs []error
	for _, orgID := range orgIDs {
		result, genErr := j.generator.GenerateWeek(ctx, orgID, target, now)
		if genErr != nil {
			logCtx := j.logg.WithField(ctx, "organization_id", orgID.String())
			j.logg.Error(logCtx, "weekly generation failed", genErr)
			errs = append(errs, fmt.Errorf("org %s: %w", orgID, genErr))
			continue
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"organization_id": orgID.String(),
			"created":         result.Created,
			"unfilled":        result.Unfilled,
			"skipped":         result.Skipped,
		})
		j.logg.Info(logCtx, "weekly generation complete")
	}
	if combined := multierr.Combine(errs...); combined != nil {
		return combined
	}
	j.generated = target
	return nil
}
