package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/internal/broadcast"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/idempotency"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
)

const notificationConsumer = "notification-worker"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type broadcaster interface {
	Send(ctx context.Context, orgID uuid.UUID, event broadcast.Event)
}

// Consumer watches dispatch events and materializes driver notifications.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	broadcast    broadcaster
	logg         *logger.Logger
}

// NewConsumer builds a dispatch notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, bc broadcaster, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("dispatch subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		broadcast:    bc,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, notificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, eventType, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, notificationConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	switch eventType {
	case enums.EventAssignmentCreated:
		return c.onAssignmentCreated(ctx, data)
	case enums.EventAutoDropExecuted:
		return c.onAutoDrop(ctx, data)
	case enums.EventNoShowDetected:
		return c.onNoShow(ctx, data)
	case enums.EventAssignmentCancelled:
		return c.onCancelled(ctx, data)
	case enums.EventBidWindowOpened:
		return c.onWindowOpened(ctx, data)
	case enums.EventBidWindowResolved:
		return c.onWindowResolved(ctx, data)
	default:
		c.logg.Info(logCtx, "event type not handled")
		return nil
	}
}

func (c *Consumer) onAssignmentCreated(ctx context.Context, data json.RawMessage) error {
	var payload payloads.AssignmentCreatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse assignment_created: %w", err)
	}
	if payload.UserID == nil {
		// Unfilled placeholder: nobody to notify yet.
		return nil
	}
	return c.repo.Create(ctx, &models.Notification{
		OrganizationID: payload.OrganizationID,
		UserID:         *payload.UserID,
		Type:           enums.NotificationTypeAssignmentAssigned,
		Title:          "New route assignment",
		Message:        fmt.Sprintf("You are scheduled for %s. Confirm before the deadline.", payload.Date.Format("Mon Jan 2")),
		Payload:        data,
	})
}

func (c *Consumer) onAutoDrop(ctx context.Context, data json.RawMessage) error {
	var payload payloads.AutoDropExecutedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse auto_drop_executed: %w", err)
	}
	if err := c.repo.Create(ctx, &models.Notification{
		OrganizationID: payload.OrganizationID,
		UserID:         payload.UserID,
		Type:           enums.NotificationTypeAssignmentDropped,
		Title:          "Assignment dropped",
		Message:        fmt.Sprintf("Your %s assignment was dropped: confirmation deadline passed.", payload.Date.Format("Mon Jan 2")),
		Payload:        data,
	}); err != nil {
		return err
	}
	c.send(ctx, payload.OrganizationID, string(enums.EventAutoDropExecuted), "assignment", payload.AssignmentID, data)
	return nil
}

func (c *Consumer) onNoShow(ctx context.Context, data json.RawMessage) error {
	var payload payloads.NoShowDetectedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse no_show_detected: %w", err)
	}
	if err := c.repo.Create(ctx, &models.Notification{
		OrganizationID: payload.OrganizationID,
		UserID:         payload.UserID,
		Type:           enums.NotificationTypeNoShowAlert,
		Title:          "Missed shift recorded",
		Message:        fmt.Sprintf("You did not arrive for your %s shift. This affects your standing.", payload.Date.Format("Mon Jan 2")),
		Payload:        data,
	}); err != nil {
		return err
	}
	c.send(ctx, payload.OrganizationID, string(enums.EventNoShowDetected), "assignment", payload.AssignmentID, data)
	return nil
}

func (c *Consumer) onCancelled(ctx context.Context, data json.RawMessage) error {
	var payload payloads.AssignmentCancelledEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse assignment_cancelled: %w", err)
	}
	// Auto-drops and no-shows already notify through their own events.
	if payload.CancelType == enums.CancelTypeManager && payload.UserID != nil {
		if err := c.repo.Create(ctx, &models.Notification{
			OrganizationID: payload.OrganizationID,
			UserID:         *payload.UserID,
			Type:           enums.NotificationTypeAssignmentCancelled,
			Title:          "Assignment removed",
			Message:        fmt.Sprintf("A manager removed you from the %s route.", payload.Date.Format("Mon Jan 2")),
			Payload:        data,
		}); err != nil {
			return err
		}
	}
	c.send(ctx, payload.OrganizationID, string(enums.EventAssignmentCancelled), "assignment", payload.AssignmentID, data)
	return nil
}

func (c *Consumer) onWindowOpened(ctx context.Context, data json.RawMessage) error {
	var payload payloads.BidWindowOpenedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse bid_window_opened: %w", err)
	}
	title := "Open route available"
	message := fmt.Sprintf("A %s route opened for %s. Place your bid before it closes.", payload.Mode, payload.Date.Format("Mon Jan 2"))
	if payload.Mode == enums.BidWindowModeEmergency {
		title = "Emergency route available"
		message = fmt.Sprintf("An emergency route for %s pays a %s%% bonus. First accept wins.", payload.Date.Format("Mon Jan 2"), payload.PayBonusPercent.StringFixed(0))
	}
	for _, userID := range payload.EligibleUserIDs {
		if err := c.repo.Create(ctx, &models.Notification{
			OrganizationID: payload.OrganizationID,
			UserID:         userID,
			Type:           enums.NotificationTypeBidWindowOpened,
			Title:          title,
			Message:        message,
			Payload:        data,
		}); err != nil {
			return err
		}
	}
	c.send(ctx, payload.OrganizationID, string(enums.EventBidWindowOpened), "bid_window", payload.BidWindowID, data)
	return nil
}

func (c *Consumer) onWindowResolved(ctx context.Context, data json.RawMessage) error {
	var payload payloads.BidWindowResolvedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse bid_window_resolved: %w", err)
	}
	if err := c.repo.Create(ctx, &models.Notification{
		OrganizationID: payload.OrganizationID,
		UserID:         payload.WinnerUserID,
		Type:           enums.NotificationTypeBidWon,
		Title:          "Bid won",
		Message:        fmt.Sprintf("You won the route for %s. It is confirmed on your schedule.", payload.Date.Format("Mon Jan 2")),
		Payload:        data,
	}); err != nil {
		return err
	}
	for _, userID := range payload.LosingUserIDs {
		if err := c.repo.Create(ctx, &models.Notification{
			OrganizationID: payload.OrganizationID,
			UserID:         userID,
			Type:           enums.NotificationTypeBidLost,
			Title:          "Bid not selected",
			Message:        fmt.Sprintf("The route for %s went to another driver.", payload.Date.Format("Mon Jan 2")),
			Payload:        data,
		}); err != nil {
			return err
		}
	}
	c.send(ctx, payload.OrganizationID, string(enums.EventBidWindowResolved), "bid_window", payload.BidWindowID, data)
	return nil
}

func (c *Consumer) send(ctx context.Context, orgID uuid.UUID, eventType, entityType string, entityID uuid.UUID, data json.RawMessage) {
	if c.broadcast == nil {
		return
	}
	c.broadcast.Send(ctx, orgID, broadcast.Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	})
}
