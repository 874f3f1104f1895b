// Package scoring computes competitive-bid scores. Instant and emergency
// windows never score; resolution takes the first valid bid instead.
package scoring

import (
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

// Inputs are the per-driver, per-route signals a competitive score is built
// from. TenureMonths is fractional months since hire.
type Inputs struct {
	HealthScore    float64
	Familiarity    int
	TenureMonths   float64
	PreferenceRank *int
}

// Score returns a bounded [0,1] weighted sum of the normalized signals. All
// caps and weights come from the policy so operators can retune without a
// deploy.
func Score(in Inputs, pol policy.Policy) float64 {
	health := clamp01(in.HealthScore / pol.HealthScoreCap)
	familiarity := clamp01(float64(in.Familiarity) / float64(pol.FamiliarityCap))
	tenure := clamp01(in.TenureMonths / float64(pol.TenureMonthsCap))

	preference := 0.0
	if in.PreferenceRank != nil && *in.PreferenceRank >= 1 && *in.PreferenceRank <= pol.PreferenceTopN {
		preference = 1.0
	}

	return pol.ScoreWeightHealth*health +
		pol.ScoreWeightFamiliarity*familiarity +
		pol.ScoreWeightTenure*tenure +
		pol.ScoreWeightPreference*preference
}

// TenureMonths converts a hire date into fractional months as of now.
func TenureMonths(hiredAt, now time.Time) float64 {
	if hiredAt.IsZero() || !hiredAt.Before(now) {
		return 0
	}
	const daysPerMonth = 30.44
	return now.Sub(hiredAt).Hours() / 24 / daysPerMonth
}

// Candidate pairs a scored bid with its submission time for ranking.
type Candidate struct {
	BidID  uuid.UUID
	UserID uuid.UUID
	Score  float64
	BidAt  time.Time
}

// Better reports whether a outranks b: higher score wins, ties break to the
// earliest bid timestamp.
func Better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.BidAt.Before(b.BidAt)
}

// PickWinner returns the top-ranked candidate, or false for an empty slate.
func PickWinner(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if Better(c, best) {
			best = c
		}
	}
	return best, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
