// Package bizclock centralizes every timezone-sensitive deadline computation.
// All boundaries are evaluated in the policy's single business timezone,
// regardless of the caller's wall clock, so displayed and enforced deadlines
// can never drift apart.
package bizclock

import (
	"time"

	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

// Date normalizes an instant to midnight of its calendar day in the business
// timezone.
func Date(t time.Time, pol policy.Policy) time.Time {
	local := t.In(pol.BusinessLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, pol.BusinessLocation)
}

// SameDate reports whether two instants fall on the same business-timezone day.
func SameDate(a, b time.Time, pol policy.Policy) bool {
	return Date(a, pol).Equal(Date(b, pol))
}

// ShiftStart returns the instant a shift begins: the assignment date at the
// route's local start-of-shift time. A nil startMinutes falls back to the
// policy default hour.
func ShiftStart(date time.Time, startMinutes *int, pol policy.Policy) time.Time {
	day := Date(date, pol)
	minutes := pol.DefaultShiftStartHour * 60
	if startMinutes != nil {
		minutes = *startMinutes
	}
	return day.Add(time.Duration(minutes) * time.Minute)
}

// ConfirmationWindow returns when the confirmation window opens and closes
// for the given shift start. The window opens ConfirmationOpenDays before the
// shift date and closes ConfirmationDeadlineHours before shift start; a
// confirmation at exactly the deadline instant is still in the window.
func ConfirmationWindow(shiftStart time.Time, pol policy.Policy) (opensAt, deadline time.Time) {
	day := Date(shiftStart, pol)
	opensAt = day.AddDate(0, 0, -pol.ConfirmationOpenDays)
	deadline = shiftStart.Add(-pol.ConfirmationDeadlineOffset())
	return opensAt, deadline
}

// ArrivalDeadline is the instant a driver must have arrived by: the shift
// start itself.
func ArrivalDeadline(date time.Time, startMinutes *int, pol policy.Policy) time.Time {
	return ShiftStart(date, startMinutes, pol)
}

// ArrivalHardCutoff is the absolute latest arrival instant on the shift date,
// used by no-show detection for routes without a clean start time.
func ArrivalHardCutoff(date time.Time, pol policy.Policy) time.Time {
	return Date(date, pol).Add(time.Duration(pol.ArrivalHardCutoffHour) * time.Hour)
}

// EndOfDay is the last instant of the shift date, the fallback close for
// emergency windows without a clean cutoff.
func EndOfDay(date time.Time, pol policy.Policy) time.Time {
	return Date(date, pol).AddDate(0, 0, 1).Add(-time.Second)
}

// WeekStart normalizes an instant to Monday 00:00 of its business week,
// the boundary used by weekly caps and schedule generation.
func WeekStart(t time.Time, pol policy.Policy) time.Time {
	day := Date(t, pol)
	weekday := int(day.Weekday())
	// time.Weekday has Sunday == 0; shift so Monday == 0.
	offset := (weekday + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// HoursUntil returns the number of whole and fractional hours between now and
// the target instant. Negative when the target is in the past.
func HoursUntil(now, target time.Time) float64 {
	return target.Sub(now).Hours()
}
