package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/audit"
	"github.com/routepilothq/routepilot-backend/internal/bidding"
	"github.com/routepilothq/routepilot-backend/internal/cron"
	"github.com/routepilothq/routepilot-backend/internal/drivers"
	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/internal/schedule"
	"github.com/routepilothq/routepilot-backend/pkg/config"
	"github.com/routepilothq/routepilot-backend/pkg/db"
	"github.com/routepilothq/routepilot-backend/pkg/instance"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/metrics"
	"github.com/routepilothq/routepilot-backend/pkg/migrate"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/redis"
)

const lockKeyFormat = "rp:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pol, err := cfg.Policy.Policy()
	if err != nil {
		logg.Error(context.Background(), "invalid policy configuration", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	auditor := audit.NewRecorder(dbClient.DB(), logg)

	driversRepo := drivers.NewRepository(dbClient.DB())
	driversService, err := drivers.NewService(driversRepo, pol)
	if err != nil {
		logg.Error(context.Background(), "failed to create drivers service", err)
		os.Exit(1)
	}

	assignmentsRepo := assignments.NewRepository(dbClient.DB())
	biddingService, err := bidding.NewService(bidding.NewRepository(dbClient.DB()), assignmentsRepo, driversService, dbClient, outboxService, logg, pol)
	if err != nil {
		logg.Error(context.Background(), "failed to create bidding service", err)
		os.Exit(1)
	}

	escalationService, err := escalation.NewService(assignmentsRepo, biddingService, driversService, dbClient, outboxService, auditor, logg, pol)
	if err != nil {
		logg.Error(context.Background(), "failed to create escalation service", err)
		os.Exit(1)
	}

	scheduleRepo := schedule.NewRepository(dbClient.DB())
	scheduleService, err := schedule.NewService(scheduleRepo, assignmentsRepo, driversRepo, driversService, dbClient, outboxService, logg, pol)
	if err != nil {
		logg.Error(context.Background(), "failed to create schedule service", err)
		os.Exit(1)
	}

	autoDropJob, err := cron.NewAutoDropJob(cron.AutoDropJobParams{Logger: logg, Sweeper: escalationService})
	if err != nil {
		logg.Error(context.Background(), "failed to create auto-drop job", err)
		os.Exit(1)
	}
	noShowJob, err := cron.NewNoShowJob(cron.NoShowJobParams{Logger: logg, Sweeper: escalationService})
	if err != nil {
		logg.Error(context.Background(), "failed to create no-show job", err)
		os.Exit(1)
	}
	windowExpiryJob, err := cron.NewWindowExpiryJob(cron.WindowExpiryJobParams{Logger: logg, Resolver: biddingService})
	if err != nil {
		logg.Error(context.Background(), "failed to create window expiry job", err)
		os.Exit(1)
	}
	weeklyScheduleJob, err := cron.NewWeeklyScheduleJob(cron.WeeklyScheduleJobParams{Logger: logg, Orgs: scheduleRepo, Generator: scheduleService, Policy: pol})
	if err != nil {
		logg.Error(context.Background(), "failed to create weekly schedule job", err)
		os.Exit(1)
	}
	preferenceLockJob, err := cron.NewPreferenceLockJob(cron.PreferenceLockJobParams{Logger: logg, Orgs: scheduleRepo, Locker: scheduleService, Policy: pol})
	if err != nil {
		logg.Error(context.Background(), "failed to create preference lock job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(windowExpiryJob, autoDropJob, noShowJob, weeklyScheduleJob, preferenceLockJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
