package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/routepilothq/routepilot-backend/internal/broadcast"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/idempotency"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
)

type stubNotificationRepo struct {
	created []*models.Notification
	err     error
}

func (s *stubNotificationRepo) Create(_ context.Context, notification *models.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, notification)
	return nil
}

type memoryStore struct {
	keys map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: make(map[string]bool)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if m.keys[key] {
		return "1", nil
	}
	return "", nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "rp:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type recordingBroadcaster struct {
	events []broadcast.Event
}

func (r *recordingBroadcaster) Send(_ context.Context, _ uuid.UUID, event broadcast.Event) {
	r.events = append(r.events, event)
}

func newTestConsumer(t *testing.T) (*Consumer, *stubNotificationRepo, *recordingBroadcaster) {
	t.Helper()
	repo := &stubNotificationRepo{}
	manager, err := idempotency.NewManager(newMemoryStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	bc := &recordingBroadcaster{}
	consumer, err := NewConsumer(repo, &pubsub.Subscriber{}, manager, bc, logger.New(logger.Options{ServiceName: "test"}))
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer, repo, bc
}

func buildMessage(t *testing.T, eventType enums.OutboxEventType, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		Attributes: map[string]string{"event_type": string(eventType)},
		Data:       envelope,
	}
}

func TestConsumerWindowOpenedFansOutToEligibleDrivers(t *testing.T) {
	consumer, repo, bc := newTestConsumer(t)
	eligible := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	msg := buildMessage(t, enums.EventBidWindowOpened, payloads.BidWindowOpenedEvent{
		BidWindowID:     uuid.New(),
		AssignmentID:    uuid.New(),
		OrganizationID:  uuid.New(),
		RouteID:         uuid.New(),
		Date:            time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Mode:            enums.BidWindowModeCompetitive,
		Trigger:         enums.BidTriggerCancellation,
		PayBonusPercent: decimal.Zero,
		EligibleUserIDs: eligible,
	})

	result := consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatal("expected ack")
	}
	if len(repo.created) != len(eligible) {
		t.Fatalf("created %d notifications, want %d", len(repo.created), len(eligible))
	}
	for _, n := range repo.created {
		if n.Type != enums.NotificationTypeBidWindowOpened {
			t.Fatalf("notification type = %s", n.Type)
		}
	}
	if len(bc.events) != 1 {
		t.Fatalf("broadcast %d events, want 1", len(bc.events))
	}
}

func TestConsumerEmergencyWindowMentionsBonus(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	msg := buildMessage(t, enums.EventBidWindowOpened, payloads.BidWindowOpenedEvent{
		BidWindowID:     uuid.New(),
		OrganizationID:  uuid.New(),
		Date:            time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Mode:            enums.BidWindowModeEmergency,
		Trigger:         enums.BidTriggerNoShow,
		PayBonusPercent: decimal.NewFromInt(20),
		EligibleUserIDs: []uuid.UUID{uuid.New()},
	})

	if result := consumer.process(context.Background(), msg); !result.ack {
		t.Fatal("expected ack")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(repo.created))
	}
	if repo.created[0].Title != "Emergency route available" {
		t.Fatalf("title = %q", repo.created[0].Title)
	}
}

func TestConsumerResolvedNotifiesWinnerAndLosers(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	winner := uuid.New()
	losers := []uuid.UUID{uuid.New(), uuid.New()}
	msg := buildMessage(t, enums.EventBidWindowResolved, payloads.BidWindowResolvedEvent{
		BidWindowID:    uuid.New(),
		OrganizationID: uuid.New(),
		Date:           time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		WinnerUserID:   winner,
		LosingUserIDs:  losers,
	})

	if result := consumer.process(context.Background(), msg); !result.ack {
		t.Fatal("expected ack")
	}
	if len(repo.created) != 3 {
		t.Fatalf("created %d notifications, want 3", len(repo.created))
	}
	wonCount, lostCount := 0, 0
	for _, n := range repo.created {
		switch n.Type {
		case enums.NotificationTypeBidWon:
			wonCount++
			if n.UserID != winner {
				t.Fatalf("bid_won went to %s, want %s", n.UserID, winner)
			}
		case enums.NotificationTypeBidLost:
			lostCount++
		}
	}
	if wonCount != 1 || lostCount != 2 {
		t.Fatalf("won=%d lost=%d, want 1/2", wonCount, lostCount)
	}
}

func TestConsumerReplayAcksWithoutDuplicates(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	msg := buildMessage(t, enums.EventAutoDropExecuted, payloads.AutoDropExecutedEvent{
		AssignmentID:   uuid.New(),
		OrganizationID: uuid.New(),
		UserID:         uuid.New(),
		Date:           time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})

	if result := consumer.process(context.Background(), msg); !result.ack {
		t.Fatal("expected ack on first delivery")
	}
	if result := consumer.process(context.Background(), msg); !result.ack {
		t.Fatal("expected ack on redelivery")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d notifications across redelivery, want 1", len(repo.created))
	}
}

func TestConsumerNacksAndClearsMarkerOnRepoFailure(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	repo.err = context.DeadlineExceeded
	msg := buildMessage(t, enums.EventAutoDropExecuted, payloads.AutoDropExecutedEvent{
		AssignmentID:   uuid.New(),
		OrganizationID: uuid.New(),
		UserID:         uuid.New(),
		Date:           time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	})

	if result := consumer.process(context.Background(), msg); !result.nack {
		t.Fatal("expected nack on repo failure")
	}

	// Marker cleared: a retry after the repo recovers still writes the row.
	repo.err = nil
	if result := consumer.process(context.Background(), msg); !result.ack {
		t.Fatal("expected ack on retry")
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(repo.created))
	}
}

func TestConsumerSkipsUnfilledPlaceholderCreation(t *testing.T) {
	consumer, repo, _ := newTestConsumer(t)
	msg := buildMessage(t, enums.EventAssignmentCreated, payloads.AssignmentCreatedEvent{
		AssignmentID:   uuid.New(),
		OrganizationID: uuid.New(),
		RouteID:        uuid.New(),
		Date:           time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		AssignedBy:     "schedule",
	})

	if result := consumer.process(context.Background(), msg); !result.ack {
		t.Fatal("expected ack")
	}
	if len(repo.created) != 0 {
		t.Fatalf("created %d notifications for a placeholder, want 0", len(repo.created))
	}
}
