package session

import (
	"testing"
	"time"

	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
)

func TestDefaultDurationsTotal(t *testing.T) {
	if got := DefaultDurations().Total(); got != 12*time.Minute {
		t.Fatalf("total = %s, want 12m", got)
	}
}

func TestParseDurations(t *testing.T) {
	d, err := ParseDurations("warmup:5, bidding:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Of(stage.Warmup) != 5 || d.Of(stage.Bidding) != 30 || d.Of(stage.Discussion) != 180 {
		t.Fatalf("durations = %v", d)
	}
	for _, raw := range []string{"warmup", "lobby:5", "warmup:0", "warmup:abc"} {
		if _, err := ParseDurations(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestDurationsOfHasFloor(t *testing.T) {
	if got := (Durations{}).Of(stage.Result); got != 1 {
		t.Fatalf("of = %d, want 1", got)
	}
}

func TestSpontaneousTrigger(t *testing.T) {
	first := func(int) int { return 0 }
	cases := []struct {
		phase     stage.Phase
		remaining int
		want      stage.Trigger
	}{
		{stage.Warmup, 40, stage.PersonalityInteractions},
		{stage.Discussion, 100, stage.ImprovementSuggestions},
		{stage.Bidding, 200, stage.CompetitiveBanter},
		{stage.Bidding, 30, stage.FinalBiddingDecision},
		{stage.Prediction, 60, stage.TransitionSegments},
		{stage.Result, 60, stage.CelebrationSequences},
	}
	for _, tc := range cases {
		if got := spontaneousTrigger(tc.phase, tc.remaining, first); got != tc.want {
			t.Fatalf("%s/%d = %s, want %s", tc.phase, tc.remaining, got, tc.want)
		}
	}
}

func TestOpeningTrigger(t *testing.T) {
	if openingTrigger(stage.Warmup) != stage.OpeningIntroductions {
		t.Fatal("warmup opens with introductions")
	}
	if openingTrigger(stage.Discussion) != stage.CreativityEvaluation {
		t.Fatal("discussion opens with the creativity evaluation")
	}
}
