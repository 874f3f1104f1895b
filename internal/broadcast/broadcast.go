// Package broadcast pushes realtime dispatch events to manager dashboards
// over a per-organization Redis channel. Delivery is best-effort: a publish
// failure is logged and never propagated.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/logger"
)

type publisher interface {
	BroadcastChannel(orgID string) string
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Event is the wire shape pushed to dashboard subscribers.
type Event struct {
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Broadcaster fans dispatch events out to an organization's channel.
type Broadcaster struct {
	pub  publisher
	logg *logger.Logger
}

// New builds a broadcaster on the shared Redis client.
func New(pub publisher, logg *logger.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, logg: logg}
}

// Send publishes the event to the organization's channel, best-effort.
func (b *Broadcaster) Send(ctx context.Context, orgID uuid.UUID, event Event) {
	if b == nil || b.pub == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = b.pub.Publish(ctx, b.pub.BroadcastChannel(orgID.String()), payload)
	}
	if err != nil && b.logg != nil {
		logCtx := b.logg.WithFields(ctx, map[string]any{
			"org_id":     orgID.String(),
			"event_type": event.Type,
		})
		b.logg.Error(logCtx, "broadcast publish failed", err)
	}
}
