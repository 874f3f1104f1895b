package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

type expiredWindowResolver interface {
	ResolveExpired(ctx context.Context, now time.Time) (int, error)
}

// WindowExpiryJobParams configure the expired bid window sweep.
type WindowExpiryJobParams struct {
	Logger   *logger.Logger
	Resolver expiredWindowResolver
}

// NewWindowExpiryJob builds the cron job that settles bid windows whose close
// time has passed. Reads also settle overdue windows lazily; this sweep bounds
// how stale a window can get without traffic.
func NewWindowExpiryJob(params WindowExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("window resolver required")
	}
	return &windowExpiryJob{
		logg:     params.Logger,
		resolver: params.Resolver,
		now:      time.Now,
	}, nil
}

type windowExpiryJob struct {
	logg     *logger.Logger
	resolver expiredWindowResolver
	now      func() time.Time
}

func (j *windowExpiryJob) Name() string { return "bid-window-expiry" }

func (j *windowExpiryJob) Run(ctx context.Context) error {
	settled, err := j.resolver.ResolveExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("window expiry sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"settled": settled})
	j.logg.Info(logCtx, "bid window expiry sweep complete")
	return nil
}
