package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

func testPolicy() policy.Policy {
	return policy.Policy{
		ScoreWeightHealth:      0.45,
		ScoreWeightFamiliarity: 0.25,
		ScoreWeightTenure:      0.15,
		ScoreWeightPreference:  0.15,
		HealthScoreCap:         100,
		FamiliarityCap:         50,
		TenureMonthsCap:        24,
		PreferenceTopN:         3,
	}
}

func intPtr(v int) *int { return &v }

func TestScore_Weighting(t *testing.T) {
	pol := testPolicy()

	perfect := Score(Inputs{
		HealthScore:    100,
		Familiarity:    50,
		TenureMonths:   24,
		PreferenceRank: intPtr(1),
	}, pol)
	if math.Abs(perfect-1.0) > 1e-9 {
		t.Fatalf("all-maxed inputs should score 1.0, got %v", perfect)
	}

	healthOnly := Score(Inputs{HealthScore: 100}, pol)
	if math.Abs(healthOnly-0.45) > 1e-9 {
		t.Fatalf("health-only score should equal its weight, got %v", healthOnly)
	}

	zero := Score(Inputs{}, pol)
	if zero != 0 {
		t.Fatalf("empty inputs should score 0, got %v", zero)
	}
}

func TestScore_ClampsAboveCaps(t *testing.T) {
	pol := testPolicy()
	s := Score(Inputs{
		HealthScore:    250,
		Familiarity:    999,
		TenureMonths:   120,
		PreferenceRank: intPtr(2),
	}, pol)
	if math.Abs(s-1.0) > 1e-9 {
		t.Fatalf("over-cap inputs must clamp to 1.0, got %v", s)
	}
	if s > 1.0 {
		t.Fatalf("score escaped [0,1]: %v", s)
	}
}

func TestScore_PreferenceBonusOnlyTopN(t *testing.T) {
	pol := testPolicy()

	inTop := Score(Inputs{PreferenceRank: intPtr(3)}, pol)
	if math.Abs(inTop-0.15) > 1e-9 {
		t.Fatalf("rank 3 preference should earn the bonus, got %v", inTop)
	}

	outside := Score(Inputs{PreferenceRank: intPtr(4)}, pol)
	if outside != 0 {
		t.Fatalf("rank 4 preference must not earn the bonus, got %v", outside)
	}

	none := Score(Inputs{}, pol)
	if none != 0 {
		t.Fatalf("no declared preference must not earn the bonus, got %v", none)
	}
}

func TestTenureMonths(t *testing.T) {
	now := time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)

	months := TenureMonths(now.AddDate(-1, 0, 0), now)
	if months < 11.5 || months > 12.5 {
		t.Fatalf("one year of tenure should be close to 12 months, got %v", months)
	}

	if TenureMonths(time.Time{}, now) != 0 {
		t.Fatal("zero hire date means zero tenure")
	}
	if TenureMonths(now.Add(time.Hour), now) != 0 {
		t.Fatal("future hire date means zero tenure")
	}
}

func TestPickWinner_HighestScoreRegardlessOfOrder(t *testing.T) {
	base := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{BidID: uuid.New(), Score: 0.9, BidAt: base},
		{BidID: uuid.New(), Score: 0.7, BidAt: base.Add(time.Second)},
		{BidID: uuid.New(), Score: 0.95, BidAt: base.Add(2 * time.Second)},
	}

	winner, ok := PickWinner(candidates)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Score != 0.95 {
		t.Fatalf("highest score must win regardless of submission order, got %v", winner.Score)
	}
}

func TestPickWinner_TieBreaksToEarliestBid(t *testing.T) {
	base := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	early := Candidate{BidID: uuid.New(), Score: 0.8, BidAt: base}
	late := Candidate{BidID: uuid.New(), Score: 0.8, BidAt: base.Add(time.Minute)}

	winner, ok := PickWinner([]Candidate{late, early})
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.BidID != early.BidID {
		t.Fatal("equal scores must break to the earliest bid")
	}
}

func TestPickWinner_EmptySlate(t *testing.T) {
	if _, ok := PickWinner(nil); ok {
		t.Fatal("empty slate must not produce a winner")
	}
}
