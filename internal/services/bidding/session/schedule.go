package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
)

// Durations maps each phase to its length in seconds.
type Durations map[stage.Phase]int

// DefaultDurations returns the stock phase lengths.
func DefaultDurations() Durations {
	return Durations{
		stage.Warmup:     60,
		stage.Discussion: 180,
		stage.Bidding:    240,
		stage.Prediction: 120,
		stage.Result:     120,
	}
}

// Of returns the duration of phase in seconds, at least one.
func (d Durations) Of(phase stage.Phase) int {
	if seconds := d[phase]; seconds > 0 {
		return seconds
	}
	return 1
}

// Total returns the length of a full session.
func (d Durations) Total() time.Duration {
	total := 0
	for _, phase := range stage.Phases() {
		total += d.Of(phase)
	}
	return time.Duration(total) * time.Second
}

// ParseDurations reads "phase:seconds" pairs separated by commas. Phases not
// listed keep their default.
func ParseDurations(raw string) (Durations, error) {
	out := DefaultDurations()
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("phase duration %q: expected phase:seconds", part)
		}
		phase, err := stage.ParsePhase(name)
		if err != nil {
			return nil, fmt.Errorf("phase duration %q: %w", part, err)
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("phase duration %q: seconds must be a positive integer", part)
		}
		out[phase] = seconds
	}
	return out, nil
}

// Probabilities is the per-tick chance of spontaneous dialogue by phase.
type Probabilities map[stage.Phase]float64

// DefaultProbabilities returns the stock per-tick chances.
func DefaultProbabilities() Probabilities {
	return Probabilities{
		stage.Warmup:     0.05,
		stage.Discussion: 0.1,
		stage.Bidding:    0.15,
		stage.Prediction: 0.08,
		stage.Result:     0.03,
	}
}

// finalBiddingWindow is the tail of the bidding phase where spontaneous
// dialogue becomes final bidding decisions.
const finalBiddingWindow = 30

// openingTrigger returns the trigger spoken shortly after phase starts.
func openingTrigger(phase stage.Phase) stage.Trigger {
	switch phase {
	case stage.Warmup:
		return stage.OpeningIntroductions
	case stage.Discussion:
		return stage.CreativityEvaluation
	case stage.Bidding:
		return stage.CompetitiveBanter
	case stage.Result:
		return stage.CelebrationSequences
	default:
		return stage.TransitionSegments
	}
}

var discussionTriggers = []stage.Trigger{
	stage.ImprovementSuggestions,
	stage.CreativeEnhancementAnalysis,
	stage.TechnicalAnalysis,
}

// spontaneousTrigger picks the trigger for unprompted dialogue.
func spontaneousTrigger(phase stage.Phase, remaining int, pick func(n int) int) stage.Trigger {
	switch phase {
	case stage.Warmup:
		return stage.PersonalityInteractions
	case stage.Discussion:
		return discussionTriggers[pick(len(discussionTriggers))]
	case stage.Bidding:
		if remaining <= finalBiddingWindow {
			return stage.FinalBiddingDecision
		}
		return stage.CompetitiveBanter
	case stage.Result:
		return stage.CelebrationSequences
	default:
		return stage.TransitionSegments
	}
}
