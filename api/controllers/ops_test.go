package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
)

type testDLQReader struct {
	listFn func(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	findFn func(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

func (r *testDLQReader) List(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if r.listFn != nil {
		return r.listFn(ctx, limit)
	}
	return nil, nil
}

func (r *testDLQReader) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if r.findFn != nil {
		return r.findFn(ctx, eventID)
	}
	return nil, nil
}

func TestListOutboxDLQ(t *testing.T) {
	var gotLimit int
	reader := &testDLQReader{
		listFn: func(_ context.Context, limit int) ([]models.OutboxDLQ, error) {
			gotLimit = limit
			return []models.OutboxDLQ{{ID: uuid.New()}, {ID: uuid.New()}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/outbox/dlq?limit=10", nil)
	req = withIdentity(req, uuid.New(), uuid.New(), "ops")
	resp := httptest.NewRecorder()
	ListOutboxDLQ(reader, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotLimit != 10 {
		t.Fatalf("unexpected limit %d", gotLimit)
	}
	var body struct {
		Data struct {
			Items []json.RawMessage `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(body.Data.Items))
	}
}

func TestListOutboxDLQRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/outbox/dlq?limit=bogus", nil)
	req = withIdentity(req, uuid.New(), uuid.New(), "ops")
	resp := httptest.NewRecorder()
	ListOutboxDLQ(&testDLQReader{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestGetOutboxDLQEntryNotFound(t *testing.T) {
	eventID := uuid.New()
	reader := &testDLQReader{
		findFn: func(_ context.Context, id uuid.UUID) (*models.OutboxDLQ, error) {
			if id != eventID {
				t.Fatalf("unexpected event id %s", id)
			}
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/outbox/dlq/"+eventID.String(), nil)
	req = withIdentity(req, uuid.New(), uuid.New(), "ops")
	req = addRouteParam(req, "eventId", eventID.String())
	resp := httptest.NewRecorder()
	GetOutboxDLQEntry(reader, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestGetOutboxDLQEntryInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/outbox/dlq/not-a-uuid", nil)
	req = withIdentity(req, uuid.New(), uuid.New(), "ops")
	req = addRouteParam(req, "eventId", "not-a-uuid")
	resp := httptest.NewRecorder()
	GetOutboxDLQEntry(&testDLQReader{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
