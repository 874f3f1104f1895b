package bidding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bidding repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWindow(ctx context.Context, window *models.BidWindow) (*models.BidWindow, error) {
	if err := r.db.WithContext(ctx).Create(window).Error; err != nil {
		return nil, err
	}
	return window, nil
}

func (r *repository) FindWindowByID(ctx context.Context, orgID, id uuid.UUID) (*models.BidWindow, error) {
	var window models.BidWindow
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&window).Error
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func (r *repository) FindOpenWindowByAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.BidWindow, error) {
	var window models.BidWindow
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND assignment_id = ? AND status = ?", orgID, assignmentID, enums.BidWindowStatusOpen).
		First(&window).Error
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func (r *repository) ResolveWindowGuarded(ctx context.Context, id, winnerID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BidWindow{}).
		Where("id = ? AND status = ?", id, enums.BidWindowStatusOpen).
		Updates(map[string]any{
			"status":      enums.BidWindowStatusResolved,
			"winner_id":   winnerID,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CloseWindowGuarded(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BidWindow{}).
		Where("id = ? AND status = ?", id, enums.BidWindowStatusOpen).
		Updates(map[string]any{
			"status":      enums.BidWindowStatusClosed,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListExpiredOpenWindows(ctx context.Context, cutoff time.Time, limit int) ([]models.BidWindow, error) {
	var rows []models.BidWindow
	err := r.db.WithContext(ctx).
		Where("status = ? AND closes_at <= ?", enums.BidWindowStatusOpen, cutoff).
		Order("closes_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOpenWindowsByOrg(ctx context.Context, orgID uuid.UUID) ([]models.BidWindow, error) {
	var rows []models.BidWindow
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ?", orgID, enums.BidWindowStatusOpen).
		Order("closes_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListWindowsByAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) ([]models.BidWindow, error) {
	var rows []models.BidWindow
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND assignment_id = ?", orgID, assignmentID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	if err := r.db.WithContext(ctx).Create(bid).Error; err != nil {
		return nil, err
	}
	return bid, nil
}

func (r *repository) FindBidByWindowAndUser(ctx context.Context, windowID, userID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("bid_window_id = ? AND user_id = ?", windowID, userID).
		First(&bid).Error
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) ListBidsByWindow(ctx context.Context, orgID, windowID uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND bid_window_id = ?", orgID, windowID).
		Order("bid_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPendingBidders(ctx context.Context, windowID uuid.UUID) ([]PendingBidder, error) {
	var rows []PendingBidder
	err := r.db.WithContext(ctx).
		Raw(`
			SELECT b.id AS bid_id, b.user_id, u.hired_at, b.bid_at
			FROM bids b
			JOIN users u ON u.id = b.user_id
			WHERE b.bid_window_id = ? AND b.status = ?
			ORDER BY b.bid_at ASC`, windowID, enums.BidStatusPending).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CountBidsByWindow(ctx context.Context, windowID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("bid_window_id = ?", windowID).
		Count(&count).Error
	return count, err
}

func (r *repository) MarkBidWon(ctx context.Context, bidID uuid.UUID, score *float64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ? AND status = ?", bidID, enums.BidStatusPending).
		Updates(map[string]any{
			"status":      enums.BidStatusWon,
			"score":       score,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkBidLost(ctx context.Context, bidID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ? AND status = ?", bidID, enums.BidStatusPending).
		Updates(map[string]any{
			"status":      enums.BidStatusLost,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkPendingBidsLost(ctx context.Context, windowID uuid.UUID, exceptBidID *uuid.UUID, at time.Time) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("bid_window_id = ? AND status = ?", windowID, enums.BidStatusPending)
	if exceptBidID != nil {
		query = query.Where("id <> ?", *exceptBidID)
	}
	result := query.Updates(map[string]any{
		"status":      enums.BidStatusLost,
		"resolved_at": at,
	})
	return result.RowsAffected, result.Error
}
