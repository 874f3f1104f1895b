package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/routepilothq/routepilot-backend/api/routes"
	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/audit"
	"github.com/routepilothq/routepilot-backend/internal/bidding"
	"github.com/routepilothq/routepilot-backend/internal/drivers"
	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/internal/notifications"
	"github.com/routepilothq/routepilot-backend/internal/schedule"
	"github.com/routepilothq/routepilot-backend/pkg/config"
	"github.com/routepilothq/routepilot-backend/pkg/db"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/migrate"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	assignmentsService, err := assignments.NewService(assignmentsRepo, dbClient, outboxService, driversService, auditor, pol)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignments service", err)
		os.Exit(1)
	}

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

	scheduleService, err := schedule.NewService(schedule.NewRepository(dbClient.DB()), assignmentsRepo, driversRepo, driversService, dbClient, outboxService, logg, pol)
	if err != nil {
		logg.Error(context.Background(), "failed to create schedule service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			assignmentsService,
			biddingService,
			escalationService,
			scheduleService,
			notificationsService,
			outbox.NewDLQRepository(dbClient.DB()),
		),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
