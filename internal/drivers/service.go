package drivers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/scoring"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

// Health score deltas per reliability event. The score is floored at zero and
// normalized against the policy cap when scored.
const (
	healthDeltaCompletion = 2.0
	healthDeltaOnTime     = 1.0
	healthDeltaLateCancel = -5.0
	healthDeltaNoShow     = -15.0
	healthDeltaAutoDrop   = -8.0

	autoFlagNoShowThreshold = 3
)

// Service owns driver reliability counters, bid eligibility and the inputs
// the scoring engine consumes.
type Service interface {
	EnsureMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error)
	GetMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error)
	SetFlagged(ctx context.Context, orgID, userID uuid.UUID, flagged bool, now time.Time) error

	CheckBidEligibility(ctx context.Context, orgID, userID uuid.UUID, date time.Time, now time.Time) error
	ListEligibleDriverIDs(ctx context.Context, orgID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]uuid.UUID, error)
	ScoringInputs(ctx context.Context, orgID, userID, routeID uuid.UUID, hiredAt *time.Time, now time.Time) (scoring.Inputs, error)

	RecordCompletionTx(ctx context.Context, tx *gorm.DB, orgID, userID, routeID uuid.UUID) error
	RecordOnTimeConfirmationTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error
	RecordLateCancellationTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error
	RecordNoShowTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID, now time.Time) error
	RecordAutoDropTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error

	ListPreferences(ctx context.Context, orgID, userID uuid.UUID) ([]models.DriverPreference, error)
	SavePreferences(ctx context.Context, orgID, userID uuid.UUID, routeIDs []uuid.UUID) error
	LockPreferences(ctx context.Context, orgID uuid.UUID, now time.Time) (int64, error)
}

type service struct {
	repo Repository
	pol  policy.Policy
}

// NewService builds the drivers service.
func NewService(repo Repository, pol policy.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("drivers repository required")
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &service{repo: repo, pol: pol}, nil
}

func (s *service) EnsureMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error) {
	return s.repo.EnsureMetrics(ctx, orgID, userID)
}

func (s *service) GetMetrics(ctx context.Context, orgID, userID uuid.UUID) (*models.DriverMetrics, error) {
	metrics, err := s.repo.FindMetrics(ctx, orgID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver metrics not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver metrics")
	}
	return metrics, nil
}

func (s *service) SetFlagged(ctx context.Context, orgID, userID uuid.UUID, flagged bool, now time.Time) error {
	if _, err := s.repo.EnsureMetrics(ctx, orgID, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure driver metrics")
	}
	if err := s.repo.SetFlagged(ctx, orgID, userID, flagged, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update flag state")
	}
	return nil
}

// CheckBidEligibility rejects flagged drivers and drivers at their weekly
// assignment cap for the week containing date.
func (s *service) CheckBidEligibility(ctx context.Context, orgID, userID uuid.UUID, date time.Time, now time.Time) error {
	metrics, err := s.repo.EnsureMetrics(ctx, orgID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver metrics")
	}
	if metrics.Flagged {
		return pkgerrors.New(pkgerrors.CodeForbidden, "flagged drivers cannot bid")
	}

	weekStart := bizclock.WeekStart(date, s.pol)
	weekEnd := weekStart.AddDate(0, 0, 7)
	count, err := s.repo.CountAssignmentsInWeek(ctx, orgID, userID, weekStart, weekEnd)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count weekly assignments")
	}
	if count >= int64(s.weeklyCap(metrics)) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "weekly assignment cap reached")
	}
	return nil
}

// ListEligibleDriverIDs returns every unflagged, under-cap driver in the
// organization for the week containing date. exclude removes the driver who
// vacated the assignment, when the trigger calls for it.
func (s *service) ListEligibleDriverIDs(ctx context.Context, orgID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]uuid.UUID, error) {
	weekStart := bizclock.WeekStart(date, s.pol)
	weekEnd := weekStart.AddDate(0, 0, 7)
	rows, err := s.repo.ListDriversForWeek(ctx, orgID, weekStart, weekEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list drivers for week")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if row.Flagged {
			continue
		}
		weeklyCap := s.pol.WeeklyAssignmentCap
		if row.WeeklyCap != nil {
			weeklyCap = *row.WeeklyCap
		}
		if row.WeekCount >= weeklyCap {
			continue
		}
		if exclude != nil && row.UserID == *exclude {
			continue
		}
		ids = append(ids, row.UserID)
	}
	return ids, nil
}

func (s *service) ScoringInputs(ctx context.Context, orgID, userID, routeID uuid.UUID, hiredAt *time.Time, now time.Time) (scoring.Inputs, error) {
	metrics, err := s.repo.EnsureMetrics(ctx, orgID, userID)
	if err != nil {
		return scoring.Inputs{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load driver metrics")
	}
	familiarity, err := s.repo.FindFamiliarity(ctx, orgID, userID, routeID)
	if err != nil {
		return scoring.Inputs{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load route familiarity")
	}
	rank, err := s.repo.FindPreferenceRank(ctx, orgID, userID, routeID)
	if err != nil {
		return scoring.Inputs{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load preference rank")
	}

	tenure := 0.0
	if hiredAt != nil {
		tenure = scoring.TenureMonths(*hiredAt, now)
	}
	return scoring.Inputs{
		HealthScore:    metrics.HealthScore,
		Familiarity:    familiarity,
		TenureMonths:   tenure,
		PreferenceRank: rank,
	}, nil
}

func (s *service) RecordCompletionTx(ctx context.Context, tx *gorm.DB, orgID, userID, routeID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	if _, err := repo.EnsureMetrics(ctx, orgID, userID); err != nil {
		return err
	}
	if err := repo.ApplyReliabilityEvent(ctx, orgID, userID, "completed_shifts", healthDeltaCompletion); err != nil {
		return err
	}
	return repo.IncrementFamiliarity(ctx, orgID, userID, routeID)
}

func (s *service) RecordOnTimeConfirmationTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	if _, err := repo.EnsureMetrics(ctx, orgID, userID); err != nil {
		return err
	}
	return repo.ApplyReliabilityEvent(ctx, orgID, userID, "confirmed_on_time", healthDeltaOnTime)
}

func (s *service) RecordLateCancellationTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	if _, err := repo.EnsureMetrics(ctx, orgID, userID); err != nil {
		return err
	}
	return repo.ApplyReliabilityEvent(ctx, orgID, userID, "late_cancellations", healthDeltaLateCancel)
}

// RecordNoShowTx also auto-flags the driver once their no-show count crosses
// the threshold; flagged drivers drop out of bidding until a manager clears
// the flag.
func (s *service) RecordNoShowTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID, now time.Time) error {
	repo := s.repo.WithTx(tx)
	metrics, err := repo.EnsureMetrics(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if err := repo.ApplyReliabilityEvent(ctx, orgID, userID, "no_shows", healthDeltaNoShow); err != nil {
		return err
	}
	if !metrics.Flagged && metrics.NoShows+1 >= autoFlagNoShowThreshold {
		return repo.SetFlagged(ctx, orgID, userID, true, now)
	}
	return nil
}

func (s *service) RecordAutoDropTx(ctx context.Context, tx *gorm.DB, orgID, userID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	if _, err := repo.EnsureMetrics(ctx, orgID, userID); err != nil {
		return err
	}
	return repo.ApplyReliabilityEvent(ctx, orgID, userID, "auto_drops", healthDeltaAutoDrop)
}

func (s *service) ListPreferences(ctx context.Context, orgID, userID uuid.UUID) ([]models.DriverPreference, error) {
	rows, err := s.repo.ListPreferences(ctx, orgID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list preferences")
	}
	return rows, nil
}

// SavePreferences replaces the driver's unlocked ranked preferences. Locked
// rows are frozen until the next weekly cycle.
func (s *service) SavePreferences(ctx context.Context, orgID, userID uuid.UUID, routeIDs []uuid.UUID) error {
	if len(routeIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one route preference required")
	}
	seen := make(map[uuid.UUID]struct{}, len(routeIDs))
	prefs := make([]models.DriverPreference, 0, len(routeIDs))
	for i, routeID := range routeIDs {
		if routeID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "route id required")
		}
		if _, dup := seen[routeID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate route preference")
		}
		seen[routeID] = struct{}{}
		prefs = append(prefs, models.DriverPreference{
			OrganizationID: orgID,
			UserID:         userID,
			RouteID:        routeID,
			Rank:           i + 1,
		})
	}

	existing, err := s.repo.ListPreferences(ctx, orgID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list preferences")
	}
	for _, row := range existing {
		if row.LockedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "preferences are locked for this week")
		}
	}

	if err := s.repo.ReplacePreferences(ctx, orgID, userID, prefs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace preferences")
	}
	return nil
}

func (s *service) LockPreferences(ctx context.Context, orgID uuid.UUID, now time.Time) (int64, error) {
	locked, err := s.repo.LockAllPreferences(ctx, orgID, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock preferences")
	}
	return locked, nil
}

func (s *service) weeklyCap(metrics *models.DriverMetrics) int {
	if metrics != nil && metrics.WeeklyCap != nil {
		return *metrics.WeeklyCap
	}
	return s.pol.WeeklyAssignmentCap
}
