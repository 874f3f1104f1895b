package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

const noShowInterval = 5 * time.Minute

type noShowSweeper interface {
	RunNoShowDetection(ctx context.Context, now time.Time) (*escalation.SweepResult, error)
}

// NoShowJobParams configure the missed-arrival sweep.
type NoShowJobParams struct {
	Logger   *logger.Logger
	Sweeper  noShowSweeper
	Interval time.Duration
}

// NewNoShowJob builds the cron job that vacates confirmed assignments whose
// driver never arrived by the hard cutoff and opens emergency bidding.
func NewNoShowJob(params NoShowJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("escalation sweeper required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = noShowInterval
	}
	return &noShowJob{
		logg:     params.Logger,
		sweeper:  params.Sweeper,
		interval: interval,
		now:      time.Now,
	}, nil
}

type noShowJob struct {
	logg     *logger.Logger
	sweeper  noShowSweeper
	interval time.Duration
	now      func() time.Time
}

func (j *noShowJob) Name() string { return "no-show-detection" }

func (j *noShowJob) Interval() time.Duration { return j.interval }

func (j *noShowJob) Run(ctx context.Context) error {
	result, err := j.sweeper.RunNoShowDetection(ctx, j.now())
	if err != nil {
		return fmt.Errorf("no-show sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": result.Candidates,
		"processed":  result.Processed,
		"skipped":    result.Skipped,
	})
	j.logg.Info(logCtx, "no-show sweep complete")
	return nil
}
