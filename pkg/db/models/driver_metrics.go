package models

import (
	"time"

	"github.com/google/uuid"
)

// DriverMetrics keeps the rolling reliability counters consumed by the
// scoring engine and by bid eligibility checks.
type DriverMetrics struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`

	HealthScore       float64 `gorm:"column:health_score;not null;default:0"`
	CompletedShifts   int     `gorm:"column:completed_shifts;not null;default:0"`
	ConfirmedOnTime   int     `gorm:"column:confirmed_on_time;not null;default:0"`
	LateCancellations int     `gorm:"column:late_cancellations;not null;default:0"`
	NoShows           int     `gorm:"column:no_shows;not null;default:0"`
	AutoDrops         int     `gorm:"column:auto_drops;not null;default:0"`

	Flagged       bool       `gorm:"column:flagged;not null;default:false"`
	FlaggedAt     *time.Time `gorm:"column:flagged_at"`
	WeeklyCap     *int       `gorm:"column:weekly_cap"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// RouteFamiliarity counts completed shifts per driver and route. It feeds the
// familiarity term of the competitive score.
type RouteFamiliarity struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_route_familiarity_user_route"`
	RouteID        uuid.UUID `gorm:"column:route_id;type:uuid;not null;uniqueIndex:ux_route_familiarity_user_route"`
	CompletedCount int       `gorm:"column:completed_count;not null;default:0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DriverPreference is a ranked route preference declared by a driver. Rank 1
// is the most preferred; the top policy.PreferenceTopN ranks earn the
// competitive scoring bonus. LockedAt freezes the row for the upcoming week.
type DriverPreference struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID  `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_driver_preferences_user_rank"`
	RouteID        uuid.UUID  `gorm:"column:route_id;type:uuid;not null"`
	Rank           int        `gorm:"column:rank;not null;uniqueIndex:ux_driver_preferences_user_rank"`
	LockedAt       *time.Time `gorm:"column:locked_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
