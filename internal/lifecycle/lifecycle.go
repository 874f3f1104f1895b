// Package lifecycle derives which assignment transitions are legal at a given
// instant. Every consumer (HTTP handlers, cron jobs, manager dashboards) must
// call Derive with the same snapshot shape so displayed and enforced deadlines
// never drift apart.
package lifecycle

import (
	"time"

	"github.com/routepilothq/routepilot-backend/pkg/bizclock"
	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

// Snapshot is the minimal read of an assignment plus its shift record needed
// to evaluate transitions. Nil pointers mean the event has not happened.
type Snapshot struct {
	Status            enums.AssignmentStatus
	Date              time.Time
	HasDriver         bool
	ConfirmedAt       *time.Time
	RouteStartMinutes *int

	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Flags reports the currently legal transitions together with the deadline
// instants they were evaluated against.
type Flags struct {
	IsConfirmable bool
	IsCancelable  bool
	IsArrivable   bool
	IsStartable   bool
	IsCompletable bool
	IsLateCancel  bool

	ShiftStartsAt        time.Time
	ConfirmationOpensAt  time.Time
	ConfirmationDeadline time.Time
	ArrivalDeadline      time.Time
	ArrivalHardCutoff    time.Time
}

// FromModels builds a Snapshot from the persisted rows. shift may be nil.
func FromModels(assignment models.Assignment, shift *models.Shift, route models.Route) Snapshot {
	snap := Snapshot{
		Status:            assignment.Status,
		Date:              assignment.Date,
		HasDriver:         assignment.UserID != nil,
		ConfirmedAt:       assignment.ConfirmedAt,
		RouteStartMinutes: route.StartMinutes,
	}
	if shift != nil {
		arrivedAt := shift.ArrivedAt
		snap.ArrivedAt = &arrivedAt
		snap.StartedAt = shift.StartedAt
		snap.CompletedAt = shift.CompletedAt
	}
	return snap
}

// Derive computes the legal transitions for the snapshot at now. Pure; no
// clock reads, no storage access.
func Derive(snap Snapshot, pol policy.Policy, now time.Time) Flags {
	shiftStart := bizclock.ShiftStart(snap.Date, snap.RouteStartMinutes, pol)
	opensAt, deadline := bizclock.ConfirmationWindow(shiftStart, pol)

	flags := Flags{
		ShiftStartsAt:        shiftStart,
		ConfirmationOpensAt:  opensAt,
		ConfirmationDeadline: deadline,
		ArrivalDeadline:      bizclock.ArrivalDeadline(snap.Date, snap.RouteStartMinutes, pol),
		ArrivalHardCutoff:    bizclock.ArrivalHardCutoff(snap.Date, pol),
	}

	if snap.Status.IsTerminal() {
		return flags
	}

	confirmed := snap.ConfirmedAt != nil
	arrived := snap.ArrivedAt != nil
	started := snap.StartedAt != nil
	completed := snap.CompletedAt != nil

	// A confirmation submitted at exactly the deadline instant is accepted;
	// one second later auto-drop eligibility begins.
	insideConfirmWindow := !now.Before(opensAt) && !now.After(deadline)
	flags.IsConfirmable = snap.Status == enums.AssignmentStatusScheduled &&
		snap.HasDriver && !confirmed && insideConfirmWindow

	flags.IsCancelable = snap.Status == enums.AssignmentStatusScheduled &&
		snap.HasDriver && !arrived && now.Before(shiftStart)

	// Late cancel only applies to a driver who had confirmed and is now
	// inside the confirmation deadline horizon.
	flags.IsLateCancel = flags.IsCancelable && confirmed && now.After(deadline)

	flags.IsArrivable = snap.Status == enums.AssignmentStatusScheduled &&
		confirmed && !arrived &&
		bizclock.SameDate(now, snap.Date, pol) && !now.After(flags.ArrivalHardCutoff)

	flags.IsStartable = snap.Status == enums.AssignmentStatusActive &&
		arrived && !started && !completed

	flags.IsCompletable = snap.Status == enums.AssignmentStatusActive &&
		started && !completed

	return flags
}
