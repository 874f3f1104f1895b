package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/config"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
)

func newTestRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DispatchTopic: "rp-dispatch-events"})
	if err != nil {
		t.Fatalf("NewEventRegistry: %v", err)
	}
	return reg
}

func envelopeRow(t *testing.T, eventType enums.OutboxEventType, aggType enums.OutboxAggregateType, aggID uuid.UUID, data interface{}) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggType,
		AggregateID:   aggID,
		Payload:       payload,
	}
}

func TestResolve_DecodesCancelPayload(t *testing.T) {
	reg := newTestRegistry(t)
	assignmentID := uuid.New()
	windowID := uuid.New()
	row := envelopeRow(t, enums.EventAssignmentCancelled, enums.AggregateAssignment, assignmentID, payloads.AssignmentCancelledEvent{
		AssignmentID:   assignmentID,
		OrganizationID: uuid.New(),
		RouteID:        uuid.New(),
		CancelType:     enums.CancelTypeAutoDrop,
		CancelledAt:    time.Now().UTC(),
		BidWindowID:    &windowID,
	})

	resolved, err := reg.Resolve(row)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "rp-dispatch-events" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	decoded, ok := resolved.Payload.(*payloads.AssignmentCancelledEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if decoded.AssignmentID != assignmentID {
		t.Fatalf("assignment id mismatch: %s", decoded.AssignmentID)
	}
	if decoded.CancelType != enums.CancelTypeAutoDrop {
		t.Fatalf("cancel type mismatch: %s", decoded.CancelType)
	}
	if decoded.BidWindowID == nil || *decoded.BidWindowID != windowID {
		t.Fatalf("bid window id mismatch")
	}
}

func TestResolve_UnsupportedEventType(t *testing.T) {
	reg := newTestRegistry(t)
	row := envelopeRow(t, enums.OutboxEventType("mystery_event"), enums.AggregateAssignment, uuid.New(), map[string]any{"x": 1})

	_, err := reg.Resolve(row)
	if err == nil {
		t.Fatal("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestResolve_AggregateMismatch(t *testing.T) {
	reg := newTestRegistry(t)
	row := envelopeRow(t, enums.EventBidWindowOpened, enums.AggregateAssignment, uuid.New(), payloads.BidWindowOpenedEvent{})

	_, err := reg.Resolve(row)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable aggregate mismatch, got %v", err)
	}
}

func TestResolve_MissingPayload(t *testing.T) {
	reg := newTestRegistry(t)
	env, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now()})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventAssignmentConfirmed,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   uuid.New(),
		Payload:       env,
	}

	_, err = reg.Resolve(row)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable missing payload, got %v", err)
	}
}
