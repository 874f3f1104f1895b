package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
)

// Repository defines persistence for bid windows and bids. Guarded mutations
// return the affected row count; zero means the row's status moved underneath
// the caller.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateWindow(ctx context.Context, window *models.BidWindow) (*models.BidWindow, error)
	FindWindowByID(ctx context.Context, orgID, id uuid.UUID) (*models.BidWindow, error)
	FindOpenWindowByAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.BidWindow, error)
	ResolveWindowGuarded(ctx context.Context, id, winnerID uuid.UUID, at time.Time) (int64, error)
	CloseWindowGuarded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	ListExpiredOpenWindows(ctx context.Context, cutoff time.Time, limit int) ([]models.BidWindow, error)
	ListOpenWindowsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.BidWindow, error)
	ListWindowsByAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) ([]models.BidWindow, error)

	CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error)
	FindBidByWindowAndUser(ctx context.Context, windowID, userID uuid.UUID) (*models.Bid, error)
	ListBidsByWindow(ctx context.Context, orgID, windowID uuid.UUID) ([]models.Bid, error)
	ListPendingBidders(ctx context.Context, windowID uuid.UUID) ([]PendingBidder, error)
	CountBidsByWindow(ctx context.Context, windowID uuid.UUID) (int64, error)
	MarkBidWon(ctx context.Context, bidID uuid.UUID, score *float64, at time.Time) (int64, error)
	MarkBidLost(ctx context.Context, bidID uuid.UUID, at time.Time) (int64, error)
	MarkPendingBidsLost(ctx context.Context, windowID uuid.UUID, exceptBidID *uuid.UUID, at time.Time) (int64, error)
}

// PendingBidder is a pending bid joined with the bidder's hire date for
// tenure scoring.
type PendingBidder struct {
	BidID   uuid.UUID  `gorm:"column:bid_id"`
	UserID  uuid.UUID  `gorm:"column:user_id"`
	HiredAt *time.Time `gorm:"column:hired_at"`
	BidAt   time.Time  `gorm:"column:bid_at"`
}
