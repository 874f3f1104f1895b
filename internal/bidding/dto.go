package bidding

import (
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
)

// OpenWindowInput describes the vacancy a replacement window should fill.
// Mode is normally auto-selected from the time remaining before shift start;
// a non-nil Mode forces it.
type OpenWindowInput struct {
	OrganizationID    uuid.UUID
	AssignmentID      uuid.UUID
	RouteID           uuid.UUID
	Date              time.Time
	RouteStartMinutes *int
	Trigger           enums.BidTrigger
	Mode              *enums.BidWindowMode
	ExcludeUserID     *uuid.UUID
	Actor             *outbox.ActorRef
}

// SubmitResult reports the bid and whether it resolved the window on the
// spot. Competitive bids stay pending until the window closes.
type SubmitResult struct {
	Bid    models.Bid
	Window models.BidWindow
	Won    bool
}

// WindowDetail is a window read together with its bids.
type WindowDetail struct {
	Window models.BidWindow
	Bids   []models.Bid
}
