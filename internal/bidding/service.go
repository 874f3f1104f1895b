package bidding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/scoring"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	dbpkg "github.com/routepilothq/routepilot-backend/pkg/db"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

const (
	openWindowIndex  = "ux_bid_windows_open_assignment"
	driverDateIndex  = "ux_assignments_driver_date"
	windowBidIndex   = "ux_bids_window_user"
	expiredBatchSize = 100
)

// errWinnerBooked aborts a resolution attempt whose winner already holds an
// assignment on the date. The caller marks that bid lost and moves to the
// next candidate.
var errWinnerBooked = errors.New("winner already booked on date")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type eligibilityService interface {
	CheckBidEligibility(ctx context.Context, orgID, userID uuid.UUID, date time.Time, now time.Time) error
	ListEligibleDriverIDs(ctx context.Context, orgID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]uuid.UUID, error)
	ScoringInputs(ctx context.Context, orgID, userID, routeID uuid.UUID, hiredAt *time.Time, now time.Time) (scoring.Inputs, error)
}

// Service owns the replacement-bidding lifecycle: opening windows, accepting
// bids, and resolving winners.
type Service interface {
	OpenWindow(ctx context.Context, input OpenWindowInput, now time.Time) (*models.BidWindow, bool, error)
	OpenWindowTx(ctx context.Context, tx *gorm.DB, input OpenWindowInput, now time.Time) (*models.BidWindow, bool, error)
	EscalateToEmergency(ctx context.Context, input OpenWindowInput, now time.Time) (*models.BidWindow, error)

	CloseOpenWindowTx(ctx context.Context, tx *gorm.DB, orgID, assignmentID uuid.UUID, now time.Time) (*models.BidWindow, error)

	SubmitBid(ctx context.Context, orgID, userID, windowID uuid.UUID, now time.Time) (*SubmitResult, error)
	ResolveWindow(ctx context.Context, orgID, windowID uuid.UUID, now time.Time) (*models.BidWindow, error)
	ResolveExpired(ctx context.Context, now time.Time) (int, error)

	GetWindow(ctx context.Context, orgID, windowID uuid.UUID, now time.Time) (*WindowDetail, error)
	ListOpenWindows(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.BidWindow, error)
	FindOpenWindow(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.BidWindow, error)
	ListBids(ctx context.Context, orgID, windowID uuid.UUID) ([]models.Bid, error)
}

type service struct {
	repo        Repository
	assignments assignments.Repository
	drivers     eligibilityService
	tx          txRunner
	outbox      outboxPublisher
	logg        *logger.Logger
	pol         policy.Policy
}

// NewService builds the bidding service.
func NewService(repo Repository, assignmentsRepo assignments.Repository, drivers eligibilityService, tx txRunner, ob outboxPublisher, logg *logger.Logger, pol policy.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bidding repository required")
	}
	if assignmentsRepo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if drivers == nil {
		return nil, fmt.Errorf("drivers service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &service{
		repo:        repo,
		assignments: assignmentsRepo,
		drivers:     drivers,
		tx:          tx,
		outbox:      ob,
		logg:        logg,
		pol:         pol,
	}, nil
}

func (s *service) OpenWindow(ctx context.Context, input OpenWindowInput, now time.Time) (*models.BidWindow, bool, error) {
	var (
		window  *models.BidWindow
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		window, created, err = s.OpenWindowTx(ctx, tx, input, now)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return window, created, nil
}

// OpenWindowTx opens a replacement window inside the caller's transaction.
// If the assignment already has an open window it is returned unchanged, so
// replayed triggers converge on the same window.
func (s *service) OpenWindowTx(ctx context.Context, tx *gorm.DB, input OpenWindowInput, now time.Time) (*models.BidWindow, bool, error) {
	if !input.Trigger.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid bid trigger")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindOpenWindowByAssignment(ctx, input.OrganizationID, input.AssignmentID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open window")
	}

	shiftStart := bizclock.ShiftStart(input.Date, input.RouteStartMinutes, s.pol)
	mode := s.selectMode(input.Mode, shiftStart, now)
	closesAt := s.closesAt(mode, input.Date, shiftStart, now)

	bonus := decimal.Zero
	if mode == enums.BidWindowModeEmergency {
		bonus = decimal.NewFromInt(int64(s.pol.EmergencyPayBonusPercent))
	}

	eligible, err := s.drivers.ListEligibleDriverIDs(ctx, input.OrganizationID, input.Date, input.ExcludeUserID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible drivers")
	}

	window := &models.BidWindow{
		OrganizationID:  input.OrganizationID,
		AssignmentID:    input.AssignmentID,
		Mode:            mode,
		Trigger:         input.Trigger,
		PayBonusPercent: bonus,
		OpensAt:         now,
		ClosesAt:        closesAt,
		Status:          enums.BidWindowStatusOpen,
	}
	if _, err := repo.CreateWindow(ctx, window); err != nil {
		if dbpkg.IsUniqueViolation(err, openWindowIndex) {
			existing, findErr := repo.FindOpenWindowByAssignment(ctx, input.OrganizationID, input.AssignmentID)
			if findErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "find racing window")
			}
			return existing, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bid window")
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBidWindowOpened,
		AggregateType: enums.AggregateBidWindow,
		AggregateID:   window.ID,
		Version:       1,
		Actor:         input.Actor,
		Data: payloads.BidWindowOpenedEvent{
			BidWindowID:     window.ID,
			AssignmentID:    input.AssignmentID,
			OrganizationID:  input.OrganizationID,
			RouteID:         input.RouteID,
			Date:            input.Date,
			Mode:            mode,
			Trigger:         input.Trigger,
			OpensAt:         window.OpensAt,
			ClosesAt:        window.ClosesAt,
			PayBonusPercent: bonus,
			EligibleUserIDs: eligible,
		},
	})
	if err != nil {
		return nil, false, err
	}
	return window, true, nil
}

// EscalateToEmergency replaces any open non-emergency window with an
// emergency one. Calling it while an emergency window is already open
// returns that window untouched. The close and the re-open share one
// transaction so no concurrent trigger can slip a window into the gap.
func (s *service) EscalateToEmergency(ctx context.Context, input OpenWindowInput, now time.Time) (*models.BidWindow, error) {
	var window *models.BidWindow
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.WithTx(tx).FindOpenWindowByAssignment(ctx, input.OrganizationID, input.AssignmentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open window")
		}
		if err == nil && existing.Mode == enums.BidWindowModeEmergency {
			window = existing
			return nil
		}
		if _, err := s.CloseOpenWindowTx(ctx, tx, input.OrganizationID, input.AssignmentID, now); err != nil {
			return err
		}

		mode := enums.BidWindowModeEmergency
		input.Mode = &mode
		window, _, err = s.OpenWindowTx(ctx, tx, input, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return window, nil
}

// CloseOpenWindowTx closes the assignment's open window, if any, inside the
// caller's transaction. Used when a manager fills the vacancy directly.
func (s *service) CloseOpenWindowTx(ctx context.Context, tx *gorm.DB, orgID, assignmentID uuid.UUID, now time.Time) (*models.BidWindow, error) {
	repo := s.repo.WithTx(tx)
	window, err := repo.FindOpenWindowByAssignment(ctx, orgID, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open window")
	}
	rows, err := repo.CloseWindowGuarded(ctx, window.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close window")
	}
	if rows == 0 {
		return nil, nil
	}
	if _, err := repo.MarkPendingBidsLost(ctx, window.ID, nil, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids lost")
	}
	bidCount, err := repo.CountBidsByWindow(ctx, window.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bids")
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBidWindowClosed,
		AggregateType: enums.AggregateBidWindow,
		AggregateID:   window.ID,
		Version:       1,
		Data: payloads.BidWindowClosedEvent{
			BidWindowID:    window.ID,
			AssignmentID:   window.AssignmentID,
			OrganizationID: window.OrganizationID,
			BidCount:       int(bidCount),
			ClosedAt:       now,
		},
	})
	if err != nil {
		return nil, err
	}
	return window, nil
}

func (s *service) SubmitBid(ctx context.Context, orgID, userID, windowID uuid.UUID, now time.Time) (*SubmitResult, error) {
	window, err := s.loadWindow(ctx, orgID, windowID)
	if err != nil {
		return nil, err
	}
	assignment, route, err := s.assignments.FindByIDWithRoute(ctx, orgID, window.AssignmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}

	if window.Status == enums.BidWindowStatusOpen && now.After(window.ClosesAt) {
		if err := s.settleExpired(ctx, window, assignment, route, now); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid window is no longer open")
	}
	if window.Status != enums.BidWindowStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid window is no longer open")
	}
	if err := s.drivers.CheckBidEligibility(ctx, orgID, userID, assignment.Date, now); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindBidByWindowAndUser(ctx, windowID, userID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "driver already bid on this window")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find existing bid")
	}

	bid := &models.Bid{
		OrganizationID: orgID,
		BidWindowID:    windowID,
		AssignmentID:   window.AssignmentID,
		UserID:         userID,
		Status:         enums.BidStatusPending,
		BidAt:          now,
		WindowClosesAt: window.ClosesAt,
	}
	won := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.CreateBid(ctx, bid); err != nil {
			if dbpkg.IsUniqueViolation(err, windowBidIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "driver already bid on this window")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bid")
		}
		if window.Mode == enums.BidWindowModeCompetitive {
			return nil
		}

		// Instant and emergency windows resolve on the first valid bid.
		// No scoring happens: the bid wins on arrival order alone.
		won = true
		winner := scoring.Candidate{BidID: bid.ID, UserID: userID, BidAt: now}
		return s.resolveWithWinner(ctx, tx, window, assignment, winner, nil, now)
	})
	if err != nil {
		if errors.Is(err, errWinnerBooked) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "driver already booked for this date")
		}
		return nil, err
	}

	result := &SubmitResult{Bid: *bid, Window: *window, Won: won}
	if won {
		updated, err := s.repo.FindWindowByID(ctx, orgID, windowID)
		if err == nil {
			result.Window = *updated
		}
	}
	return result, nil
}

// ResolveWindow settles a competitive window: scores the pending bids, picks
// the winner, and claims the assignment. When every bid has lapsed, or no
// bids arrived, the window closes and a fallback instant window takes over.
func (s *service) ResolveWindow(ctx context.Context, orgID, windowID uuid.UUID, now time.Time) (*models.BidWindow, error) {
	window, err := s.loadWindow(ctx, orgID, windowID)
	if err != nil {
		return nil, err
	}
	if window.Status != enums.BidWindowStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bid window already settled")
	}
	assignment, route, err := s.assignments.FindByIDWithRoute(ctx, orgID, window.AssignmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}

	bidders, err := s.repo.ListPendingBidders(ctx, windowID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending bidders")
	}

	ranked := make([]scoring.Candidate, 0, len(bidders))
	for _, bidder := range bidders {
		candidate, err := s.scoreBidder(ctx, bidder, orgID, assignment.RouteID, now)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, candidate)
	}
	sort.Slice(ranked, func(i, j int) bool { return scoring.Better(ranked[i], ranked[j]) })

	losers := func(winner uuid.UUID) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(bidders))
		for _, b := range bidders {
			if b.UserID != winner {
				out = append(out, b.UserID)
			}
		}
		return out
	}

	for _, candidate := range ranked {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.resolveWithWinner(ctx, tx, window, assignment, candidate, losers(candidate.UserID), now)
		})
		if errors.Is(err, errWinnerBooked) {
			// The index caught a winner who is already booked that day.
			// Drop the bid and try the next candidate.
			if _, markErr := s.repo.MarkBidLost(ctx, candidate.BidID, now); markErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, markErr, "mark conflicted bid lost")
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.repo.FindWindowByID(ctx, orgID, windowID)
	}

	// No winnable bid: close this window and fall back to an instant one so
	// the vacancy stays visible until shift start.
	if err := s.closeWithFallback(ctx, window, assignment, route, now); err != nil {
		return nil, err
	}
	return s.repo.FindWindowByID(ctx, orgID, windowID)
}

// ResolveExpired sweeps open windows whose close time has passed.
func (s *service) ResolveExpired(ctx context.Context, now time.Time) (int, error) {
	windows, err := s.repo.ListExpiredOpenWindows(ctx, now, expiredBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired windows")
	}
	settled := 0
	for i := range windows {
		window := windows[i]
		assignment, route, err := s.assignments.FindByIDWithRoute(ctx, window.OrganizationID, window.AssignmentID)
		if err != nil {
			s.logg.Error(ctx, "load assignment for expired window", err)
			continue
		}
		if err := s.settleExpired(ctx, &window, assignment, route, now); err != nil {
			s.logg.Error(ctx, "settle expired bid window", err)
			continue
		}
		settled++
	}
	return settled, nil
}

// GetWindow settles an overdue window on read so callers never see an open
// window whose close time has passed.
func (s *service) GetWindow(ctx context.Context, orgID, windowID uuid.UUID, now time.Time) (*WindowDetail, error) {
	window, err := s.loadWindow(ctx, orgID, windowID)
	if err != nil {
		return nil, err
	}
	if window.Status == enums.BidWindowStatusOpen && now.After(window.ClosesAt) {
		assignment, route, err := s.assignments.FindByIDWithRoute(ctx, orgID, window.AssignmentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
		}
		if err := s.settleExpired(ctx, window, assignment, route, now); err != nil {
			return nil, err
		}
		window, err = s.loadWindow(ctx, orgID, windowID)
		if err != nil {
			return nil, err
		}
	}
	bids, err := s.repo.ListBidsByWindow(ctx, orgID, windowID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	return &WindowDetail{Window: *window, Bids: bids}, nil
}

// ListOpenWindows returns the organization's open windows, settling any whose
// close time has passed so stale windows never reach drivers.
func (s *service) ListOpenWindows(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.BidWindow, error) {
	windows, err := s.repo.ListOpenWindowsByOrg(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open windows")
	}
	open := make([]models.BidWindow, 0, len(windows))
	for i := range windows {
		window := windows[i]
		if !now.After(window.ClosesAt) {
			open = append(open, window)
			continue
		}
		assignment, route, err := s.assignments.FindByIDWithRoute(ctx, orgID, window.AssignmentID)
		if err != nil {
			s.logg.Error(ctx, "load assignment for expired window", err)
			continue
		}
		if err := s.settleExpired(ctx, &window, assignment, route, now); err != nil {
			s.logg.Error(ctx, "settle expired bid window", err)
		}
	}
	return open, nil
}

func (s *service) FindOpenWindow(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.BidWindow, error) {
	window, err := s.repo.FindOpenWindowByAssignment(ctx, orgID, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no open bid window for assignment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open window")
	}
	return window, nil
}

func (s *service) ListBids(ctx context.Context, orgID, windowID uuid.UUID) ([]models.Bid, error) {
	if _, err := s.loadWindow(ctx, orgID, windowID); err != nil {
		return nil, err
	}
	bids, err := s.repo.ListBidsByWindow(ctx, orgID, windowID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	return bids, nil
}

// selectMode picks the window mode from the time remaining before shift
// start unless the caller forced one.
func (s *service) selectMode(forced *enums.BidWindowMode, shiftStart, now time.Time) enums.BidWindowMode {
	if forced != nil {
		return *forced
	}
	if bizclock.HoursUntil(now, shiftStart) > float64(s.pol.InstantCutoffHours) {
		return enums.BidWindowModeCompetitive
	}
	return enums.BidWindowModeInstant
}

func (s *service) closesAt(mode enums.BidWindowMode, date, shiftStart, now time.Time) time.Time {
	switch mode {
	case enums.BidWindowModeCompetitive:
		return shiftStart.Add(-time.Duration(s.pol.InstantCutoffHours) * time.Hour)
	case enums.BidWindowModeEmergency:
		if !shiftStart.After(now) {
			return bizclock.EndOfDay(date, s.pol)
		}
		return shiftStart
	default:
		return shiftStart
	}
}

func (s *service) loadWindow(ctx context.Context, orgID, windowID uuid.UUID) (*models.BidWindow, error) {
	window, err := s.repo.FindWindowByID(ctx, orgID, windowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bid window not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid window")
	}
	return window, nil
}

func (s *service) scoreBidder(ctx context.Context, bidder PendingBidder, orgID, routeID uuid.UUID, now time.Time) (scoring.Candidate, error) {
	inputs, err := s.drivers.ScoringInputs(ctx, orgID, bidder.UserID, routeID, bidder.HiredAt, now)
	if err != nil {
		return scoring.Candidate{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scoring inputs")
	}
	return scoring.Candidate{
		BidID:  bidder.BidID,
		UserID: bidder.UserID,
		Score:  scoring.Score(inputs, s.pol),
		BidAt:  bidder.BidAt,
	}, nil
}

// resolveWithWinner performs the winning transition inside tx: window to
// resolved, winning bid to won, the rest to lost, and the assignment claimed
// back to scheduled with the winner confirmed.
func (s *service) resolveWithWinner(ctx context.Context, tx *gorm.DB, window *models.BidWindow, assignment *models.Assignment, winner scoring.Candidate, losingUserIDs []uuid.UUID, now time.Time) error {
	repo := s.repo.WithTx(tx)

	// Claim first: the driver/date index rejects a winner who picked up
	// another assignment on the date before anything else moves.
	rows, err := s.assignments.WithTx(tx).ClaimGuarded(ctx, assignment.ID, winner.UserID, now)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, driverDateIndex) {
			return errWinnerBooked
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim assignment")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment is no longer awaiting a replacement")
	}

	rows, err = repo.ResolveWindowGuarded(ctx, window.ID, winner.UserID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve window")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "bid window is no longer open")
	}
	// Only competitive windows rank bidders, so only they carry a score.
	var score *float64
	if window.Mode == enums.BidWindowModeCompetitive {
		score = &winner.Score
	}
	rows, err = repo.MarkBidWon(ctx, winner.BidID, score, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bid won")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "winning bid is no longer pending")
	}
	if _, err := repo.MarkPendingBidsLost(ctx, window.ID, &winner.BidID, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids lost")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBidWindowResolved,
		AggregateType: enums.AggregateBidWindow,
		AggregateID:   window.ID,
		Version:       1,
		Data: payloads.BidWindowResolvedEvent{
			BidWindowID:    window.ID,
			AssignmentID:   assignment.ID,
			OrganizationID: window.OrganizationID,
			RouteID:        assignment.RouteID,
			Date:           assignment.Date,
			WinnerUserID:   winner.UserID,
			WinningScore:   score,
			LosingUserIDs:  losingUserIDs,
			ResolvedAt:     now,
		},
	})
}

// settleExpired handles an open window past its close: competitive windows
// resolve against their bids, instant and emergency windows just close.
func (s *service) settleExpired(ctx context.Context, window *models.BidWindow, assignment *models.Assignment, route *models.Route, now time.Time) error {
	if window.Mode == enums.BidWindowModeCompetitive {
		_, err := s.ResolveWindow(ctx, window.OrganizationID, window.ID, now)
		if pe := pkgerrors.As(err); pe != nil && pe.Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	}
	return s.closeWindow(ctx, window, now, nil)
}

// closeWithFallback closes a competitive window that found no winner and
// opens an instant window in its place.
func (s *service) closeWithFallback(ctx context.Context, window *models.BidWindow, assignment *models.Assignment, route *models.Route, now time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.CloseWindowGuarded(ctx, window.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close window")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid window is no longer open")
		}
		if _, err := repo.MarkPendingBidsLost(ctx, window.ID, nil, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids lost")
		}

		mode := enums.BidWindowModeInstant
		fallback, _, err := s.OpenWindowTx(ctx, tx, OpenWindowInput{
			OrganizationID:    window.OrganizationID,
			AssignmentID:      window.AssignmentID,
			RouteID:           assignment.RouteID,
			Date:              assignment.Date,
			RouteStartMinutes: route.StartMinutes,
			Trigger:           window.Trigger,
			Mode:              &mode,
		}, now)
		if err != nil {
			return err
		}

		bidCount, err := repo.CountBidsByWindow(ctx, window.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bids")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBidWindowClosed,
			AggregateType: enums.AggregateBidWindow,
			AggregateID:   window.ID,
			Version:       1,
			Data: payloads.BidWindowClosedEvent{
				BidWindowID:      window.ID,
				AssignmentID:     window.AssignmentID,
				OrganizationID:   window.OrganizationID,
				BidCount:         int(bidCount),
				ClosedAt:         now,
				FallbackWindowID: &fallback.ID,
			},
		})
	})
}

// closeWindow closes a window with no successor.
func (s *service) closeWindow(ctx context.Context, window *models.BidWindow, now time.Time, fallbackID *uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.CloseWindowGuarded(ctx, window.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close window")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bid window is no longer open")
		}
		if _, err := repo.MarkPendingBidsLost(ctx, window.ID, nil, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark bids lost")
		}
		bidCount, err := repo.CountBidsByWindow(ctx, window.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bids")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBidWindowClosed,
			AggregateType: enums.AggregateBidWindow,
			AggregateID:   window.ID,
			Version:       1,
			Data: payloads.BidWindowClosedEvent{
				BidWindowID:      window.ID,
				AssignmentID:     window.AssignmentID,
				OrganizationID:   window.OrganizationID,
				BidCount:         int(bidCount),
				ClosedAt:         now,
				FallbackWindowID: fallbackID,
			},
		})
	})
}
