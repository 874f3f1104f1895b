package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

// Preferences freeze Thursday business time, the day before generation, so
// drivers cannot reshuffle rankings once the board is being built.
const preferenceLockDay = time.Thursday

type preferenceLocker interface {
	LockPreferences(ctx context.Context, orgID uuid.UUID, now time.Time) (int64, error)
}

// PreferenceLockJobParams configure the weekly preference freeze.
type PreferenceLockJobParams struct {
	Logger *logger.Logger
	Orgs   orgLister
	Locker preferenceLocker
	Policy policy.Policy
}

// NewPreferenceLockJob builds the cron job that freezes driver route
// preferences ahead of weekly generation.
func NewPreferenceLockJob(params PreferenceLockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orgs == nil {
		return nil, fmt.Errorf("organization lister required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("preference locker required")
	}
	if err := params.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &preferenceLockJob{
		logg:   params.Logger,
		orgs:   params.Orgs,
		locker: params.Locker,
		pol:    params.Policy,
		now:    time.Now,
	}, nil
}

type preferenceLockJob struct {
	logg   *logger.Logger
	orgs   orgLister
	locker preferenceLocker
	pol    policy.Policy
	locked time.Time
	now    func() time.Time
}

func (j *preferenceLockJob) Name() string { return "preference-lock" }

func (j *preferenceLockJob) Interval() time.Duration { return time.Hour }

func (j *preferenceLockJob) Run(ctx context.Context) error {
	now := j.now()
	target := bizclock.WeekStart(now, j.pol).AddDate(0, 0, 7)
	if bizclock.Date(now, j.pol).Weekday() != preferenceLockDay {
		return nil
	}
	if j.locked.Equal(target) {
		return nil
	}

	orgIDs, err := j.orgs.ListActiveOrganizationIDs(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	var errs []error
	for _, orgID := range orgIDs {
		count, lockErr := j.locker.LockPreferences(ctx, orgID, now)
		if lockErr != nil {
			logCtx := j.logg.WithField(ctx, "organization_id", orgID.String())
			j.logg.Error(logCtx, "preference lock failed", lockErr)
			errs = append(errs, fmt.Errorf("org %s: %w", orgID, lockErr))
			continue
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"organization_id": orgID.String(),
			"drivers_locked":  count,
		})
		j.logg.Info(logCtx, "preferences locked")
	}
	if combined := multierr.Combine(errs...); combined != nil {
		return combined
	}
	j.locked = target
	return nil
}
