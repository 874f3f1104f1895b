package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/routepilothq/routepilot-backend/api/controllers"
	"github.com/routepilothq/routepilot-backend/api/middleware"
	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/bidding"
	"github.com/routepilothq/routepilot-backend/internal/escalation"
	"github.com/routepilothq/routepilot-backend/internal/notifications"
	"github.com/routepilothq/routepilot-backend/internal/schedule"
	"github.com/routepilothq/routepilot-backend/pkg/config"
	"github.com/routepilothq/routepilot-backend/pkg/db"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	assignmentsService assignments.Service,
	biddingService bidding.Service,
	escalationService escalation.Service,
	scheduleService schedule.Service,
	notificationsService notifications.Service,
	dlqReader controllers.DLQReader,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Get("/readyz", controllers.HealthReady(cfg, logg, dbP, redisP))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/driver", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleDriver), logg))

			r.Route("/assignments", func(r chi.Router) {
				r.Get("/", controllers.ListDriverAssignments(assignmentsService, logg))
				r.Route("/{assignmentId}", func(r chi.Router) {
					r.Post("/confirm", controllers.ConfirmAssignment(assignmentsService, logg))
					r.Post("/cancel", controllers.CancelAssignment(escalationService, logg))
					r.Post("/arrive", controllers.ArriveAssignment(assignmentsService, logg))
					r.Post("/start", controllers.StartAssignment(assignmentsService, logg))
					r.Post("/complete", controllers.CompleteAssignment(assignmentsService, logg))
				})
			})

			r.Route("/bid-windows", func(r chi.Router) {
				r.Get("/", controllers.ListOpenBidWindows(biddingService, logg))
				r.Post("/{windowId}/bids", controllers.SubmitBid(biddingService, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})
		})

		r.Route("/manager", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleManager), logg))

			r.Route("/assignments/{assignmentId}", func(r chi.Router) {
				r.Post("/override", controllers.OverrideAssignment(escalationService, logg))
				r.Post("/shift", controllers.EditShift(assignmentsService, logg))
			})
			r.Get("/bid-windows/{windowId}", controllers.ManagerBidWindowDetail(biddingService, logg))
		})

		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleOps), logg))

			r.Route("/run", func(r chi.Router) {
				r.Post("/auto-drop", controllers.RunAutoDrop(escalationService, logg))
				r.Post("/no-show-detection", controllers.RunNoShowDetection(escalationService, logg))
				r.Post("/bid-window-expiry", controllers.RunBidWindowExpiry(biddingService, logg))
				r.Post("/weekly-schedule", controllers.RunWeeklySchedule(scheduleService, logg))
				r.Post("/preference-lock", controllers.RunPreferenceLock(scheduleService, logg))
			})

			r.Route("/outbox/dlq", func(r chi.Router) {
				r.Get("/", controllers.ListOutboxDLQ(dlqReader, logg))
				r.Get("/{eventId}", controllers.GetOutboxDLQEntry(dlqReader, logg))
			})
		})
	})

	return r
}
