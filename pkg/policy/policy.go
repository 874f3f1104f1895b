package policy

import (
	"fmt"
	"math"
	"time"
)

// Policy is the versioned set of dispatch policy values. It is built once from
// configuration and passed explicitly into every pure function so deadline and
// scoring behavior never depends on hidden globals.
type Policy struct {
	// BusinessLocation is the single canonical timezone for all deadline
	// boundaries, regardless of the caller's wall clock.
	BusinessLocation *time.Location

	ConfirmationOpenDays      int
	ConfirmationDeadlineHours int
	InstantCutoffHours        int

	DefaultShiftStartHour int
	ArrivalHardCutoffHour int
	ShiftEditableHours    int

	EmergencyPayBonusPercent int

	ScoreWeightHealth      float64
	ScoreWeightFamiliarity float64
	ScoreWeightTenure      float64
	ScoreWeightPreference  float64
	HealthScoreCap         float64
	FamiliarityCap         int
	TenureMonthsCap        int
	PreferenceTopN         int

	WeeklyAssignmentCap int
}

// Validate rejects policies that would make deadline or scoring math
// degenerate.
func (p Policy) Validate() error {
	if p.BusinessLocation == nil {
		return fmt.Errorf("business location is required")
	}
	if p.ConfirmationOpenDays <= 0 {
		return fmt.Errorf("confirmation open days must be positive")
	}
	if p.ConfirmationDeadlineHours <= 0 {
		return fmt.Errorf("confirmation deadline hours must be positive")
	}
	if p.InstantCutoffHours <= 0 {
		return fmt.Errorf("instant cutoff hours must be positive")
	}
	if p.DefaultShiftStartHour < 0 || p.DefaultShiftStartHour > 23 {
		return fmt.Errorf("default shift start hour out of range")
	}
	if p.ArrivalHardCutoffHour < p.DefaultShiftStartHour {
		return fmt.Errorf("arrival hard cutoff must not precede the default shift start")
	}
	if p.HealthScoreCap <= 0 || p.FamiliarityCap <= 0 || p.TenureMonthsCap <= 0 {
		return fmt.Errorf("scoring normalization caps must be positive")
	}
	weightSum := p.ScoreWeightHealth + p.ScoreWeightFamiliarity + p.ScoreWeightTenure + p.ScoreWeightPreference
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", weightSum)
	}
	if p.WeeklyAssignmentCap <= 0 {
		return fmt.Errorf("weekly assignment cap must be positive")
	}
	return nil
}

// ConfirmationDeadlineOffset returns the duration before shift start at which
// the confirmation window closes.
func (p Policy) ConfirmationDeadlineOffset() time.Duration {
	return time.Duration(p.ConfirmationDeadlineHours) * time.Hour
}

// InstantCutoff returns the duration before shift start under which
// replacement windows switch from competitive to instant mode.
func (p Policy) InstantCutoff() time.Duration {
	return time.Duration(p.InstantCutoffHours) * time.Hour
}
