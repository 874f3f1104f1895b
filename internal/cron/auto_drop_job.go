package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

const autoDropInterval = time.Hour

type autoDropSweeper interface {
	RunAutoDrop(ctx context.Context, now time.Time) (*escalation.SweepResult, error)
}

// AutoDropJobParams configure the unconfirmed-assignment sweep.
type AutoDropJobParams struct {
	Logger   *logger.Logger
	Sweeper  autoDropSweeper
	Interval time.Duration
}

// NewAutoDropJob builds the cron job that drops assignments whose confirmation
// deadline has passed and opens replacement bidding for each.
func NewAutoDropJob(params AutoDropJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("escalation sweeper required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = autoDropInterval
	}
	return &autoDropJob{
		logg:     params.Logger,
		sweeper:  params.Sweeper,
		interval: interval,
		now:      time.Now,
	}, nil
}

type autoDropJob struct {
	logg     *logger.Logger
	sweeper  autoDropSweeper
	interval time.Duration
	now      func() time.Time
}

func (j *autoDropJob) Name() string { return "auto-drop" }

func (j *autoDropJob) Interval() time.Duration { return j.interval }

func (j *autoDropJob) Run(ctx context.Context) error {
	result, err := j.sweeper.RunAutoDrop(ctx, j.now())
	if err != nil {
		return fmt.Errorf("auto-drop sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": result.Candidates,
		"processed":  result.Processed,
		"skipped":    result.Skipped,
	})
	j.logg.Info(logCtx, "auto-drop sweep complete")
	return nil
}
