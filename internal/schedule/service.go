package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/internal/assignments"
	"github.com/routepilothq/routepilot-backend/internal/drivers"
	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	pkgerrors "github.com/routepilothq/routepilot-backend/pkg/errors"
	"github.com/routepilothq/routepilot-backend/pkg/logger"
	"github.com/routepilothq/routepilot-backend/pkg/outbox"
	"github.com/routepilothq/routepilot-backend/pkg/outbox/payloads"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type driverRoster interface {
	ListDriversForWeek(ctx context.Context, orgID uuid.UUID, weekStart, weekEnd time.Time) ([]drivers.EligibleDriver, error)
}

type preferenceLocker interface {
	LockPreferences(ctx context.Context, orgID uuid.UUID, now time.Time) (int64, error)
}

// GenerateResult summarizes one weekly generation run.
type GenerateResult struct {
	WeekStart time.Time
	Created   int
	Unfilled  int
	Skipped   int
}

// Service builds the weekly board from frozen driver preferences.
type Service interface {
	GenerateWeek(ctx context.Context, orgID uuid.UUID, weekOf time.Time, now time.Time) (*GenerateResult, error)
	LockPreferences(ctx context.Context, orgID uuid.UUID, now time.Time) (int64, error)
}

type service struct {
	repo        Repository
	assignments assignments.Repository
	roster      driverRoster
	locker      preferenceLocker
	tx          txRunner
	outbox      outboxPublisher
	logg        *logger.Logger
	pol         policy.Policy
}

// NewService builds the schedule service.
func NewService(repo Repository, assignmentsRepo assignments.Repository, roster driverRoster, locker preferenceLocker, tx txRunner, ob outboxPublisher, logg *logger.Logger, pol policy.Policy) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("schedule repository required")
	}
	if assignmentsRepo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if roster == nil {
		return nil, fmt.Errorf("driver roster required")
	}
	if locker == nil {
		return nil, fmt.Errorf("preference locker required")
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
		roster:      roster,
		locker:      locker,
		tx:          tx,
		outbox:      ob,
		logg:        logg,
		pol:         pol,
	}, nil
}

// GenerateWeek fills every active route for every day of the target week
// from the frozen preference rankings, respecting weekly caps and the
// one-assignment-per-day rule. Route/day slots that already carry a
// non-cancelled assignment are left untouched, so the run can be repeated.
func (s *service) GenerateWeek(ctx context.Context, orgID uuid.UUID, weekOf time.Time, now time.Time) (*GenerateResult, error) {
	weekStart := bizclock.WeekStart(weekOf, s.pol)
	weekEnd := weekStart.AddDate(0, 0, 7)

	routes, err := s.repo.ListActiveRoutes(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list routes")
	}
	prefs, err := s.repo.ListLockedPreferences(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locked preferences")
	}
	roster, err := s.roster.ListDriversForWeek(ctx, orgID, weekStart, weekEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list drivers")
	}
	existing, err := s.repo.ListAssignmentsInRange(ctx, orgID, weekStart, weekEnd)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list existing assignments")
	}

	board := newBoard(roster, existing, s.pol)
	byRoute := preferencesByRoute(prefs)

	result := &GenerateResult{WeekStart: weekStart}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.assignments.WithTx(tx)
		for day := 0; day < 7; day++ {
			date := weekStart.AddDate(0, 0, day)
			for i := range routes {
				route := routes[i]
				if board.slotTaken(route.ID, date) {
					result.Skipped++
					continue
				}
				assignment := &models.Assignment{
					OrganizationID: orgID,
					RouteID:        route.ID,
					WarehouseID:    route.WarehouseID,
					Date:           date,
					Status:         enums.AssignmentStatusUnfilled,
				}
				driverID, ok := board.pick(byRoute[route.ID], date)
				if ok {
					assignment.UserID = &driverID
					assignment.Status = enums.AssignmentStatusScheduled
					assignment.AssignedAt = &now
				}
				if _, err := repo.Create(ctx, assignment); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
				}
				if ok {
					board.book(driverID, route.ID, date)
					result.Created++
					if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
						EventType:     enums.EventAssignmentCreated,
						AggregateType: enums.AggregateAssignment,
						AggregateID:   assignment.ID,
						Version:       1,
						Data: payloads.AssignmentCreatedEvent{
							AssignmentID:   assignment.ID,
							OrganizationID: orgID,
							RouteID:        route.ID,
							UserID:         &driverID,
							Date:           date,
							AssignedBy:     "schedule",
						},
					}); err != nil {
						return err
					}
				} else {
					board.take(route.ID, date)
					result.Unfilled++
				}
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventScheduleGenerated,
			AggregateType: enums.AggregateSchedule,
			AggregateID:   orgID,
			Version:       1,
			Data: payloads.ScheduleGeneratedEvent{
				OrganizationID:     orgID,
				WeekStart:          weekStart,
				AssignmentsCreated: result.Created,
				RoutesUnfilled:     result.Unfilled,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"organization_id": orgID.String(),
		"week_start":      weekStart.Format("2006-01-02"),
		"created":         result.Created,
		"unfilled":        result.Unfilled,
		"skipped":         result.Skipped,
	})
	s.logg.Info(logCtx, "weekly schedule generated")
	return result, nil
}

// LockPreferences freezes every unlocked preference in the organization for
// the upcoming week.
func (s *service) LockPreferences(ctx context.Context, orgID uuid.UUID, now time.Time) (int64, error) {
	locked, err := s.locker.LockPreferences(ctx, orgID, now)
	if err != nil {
		return 0, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPreferencesLocked,
			AggregateType: enums.AggregateSchedule,
			AggregateID:   orgID,
			Version:       1,
			Data: payloads.PreferencesLockedEvent{
				OrganizationID: orgID,
				WeekStart:      bizclock.WeekStart(now, s.pol).AddDate(0, 0, 7),
				LockedAt:       now,
				DriversLocked:  int(locked),
			},
		})
	})
	if err != nil {
		return 0, err
	}
	return locked, nil
}

// board tracks which drivers and slots are spoken for while a week is being
// generated.
type board struct {
	slots     map[string]bool
	driverDay map[string]bool
	weekCount map[uuid.UUID]int
	caps      map[uuid.UUID]int
	flagged   map[uuid.UUID]bool
	known     map[uuid.UUID]bool
}

func newBoard(roster []drivers.EligibleDriver, existing []models.Assignment, pol policy.Policy) *board {
	b := &board{
		slots:     make(map[string]bool),
		driverDay: make(map[string]bool),
		weekCount: make(map[uuid.UUID]int),
		caps:      make(map[uuid.UUID]int),
		flagged:   make(map[uuid.UUID]bool),
		known:     make(map[uuid.UUID]bool),
	}
	for _, d := range roster {
		b.known[d.UserID] = true
		b.flagged[d.UserID] = d.Flagged
		b.weekCount[d.UserID] = d.WeekCount
		weeklyCap := pol.WeeklyAssignmentCap
		if d.WeeklyCap != nil {
			weeklyCap = *d.WeeklyCap
		}
		b.caps[d.UserID] = weeklyCap
	}
	for _, a := range existing {
		if a.Status == enums.AssignmentStatusCancelled {
			continue
		}
		b.slots[slotKey(a.RouteID, a.Date)] = true
		if a.UserID != nil {
			b.driverDay[dayKey(*a.UserID, a.Date)] = true
		}
	}
	return b
}

func (b *board) slotTaken(routeID uuid.UUID, date time.Time) bool {
	return b.slots[slotKey(routeID, date)]
}

// pick returns the best available driver for the route on the date, walking
// the frozen rankings in rank order.
func (b *board) pick(prefs []models.DriverPreference, date time.Time) (uuid.UUID, bool) {
	for _, pref := range prefs {
		id := pref.UserID
		if !b.known[id] || b.flagged[id] {
			continue
		}
		if b.driverDay[dayKey(id, date)] {
			continue
		}
		if b.weekCount[id] >= b.caps[id] {
			continue
		}
		return id, true
	}
	return uuid.Nil, false
}

func (b *board) book(driverID, routeID uuid.UUID, date time.Time) {
	b.take(routeID, date)
	b.driverDay[dayKey(driverID, date)] = true
	b.weekCount[driverID]++
}

func (b *board) take(routeID uuid.UUID, date time.Time) {
	b.slots[slotKey(routeID, date)] = true
}

func preferencesByRoute(prefs []models.DriverPreference) map[uuid.UUID][]models.DriverPreference {
	byRoute := make(map[uuid.UUID][]models.DriverPreference)
	for _, pref := range prefs {
		byRoute[pref.RouteID] = append(byRoute[pref.RouteID], pref)
	}
	for routeID := range byRoute {
		list := byRoute[routeID]
		sort.Slice(list, func(i, j int) bool { return list[i].Rank < list[j].Rank })
		byRoute[routeID] = list
	}
	return byRoute
}

func slotKey(routeID uuid.UUID, date time.Time) string {
	return routeID.String() + "|" + date.Format("2006-01-02")
}

func dayKey(userID uuid.UUID, date time.Time) string {
	return userID.String() + "|" + date.Format("2006-01-02")
}
