// Package stage defines the phase and trigger vocabulary shared by the
// session machine, the decision engine and the template library.
package stage

import (
	"fmt"
	"strings"
)

// Phase is one step of a session. Phases only move forward.
type Phase uint8

// Phases in session order.
const (
	Warmup Phase = iota
	Discussion
	Bidding
	Prediction
	Result
)

var phaseNames = [...]string{
	Warmup:     "warmup",
	Discussion: "discussion",
	Bidding:    "bidding",
	Prediction: "prediction",
	Result:     "result",
}

// Phases returns every phase in order.
func Phases() []Phase {
	return []Phase{Warmup, Discussion, Bidding, Prediction, Result}
}

// String returns the wire name of the phase.
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return int(p) < len(phaseNames)
}

// Terminal reports whether p is the last phase.
func (p Phase) Terminal() bool {
	return p == Result
}

// Next returns the following phase. The terminal phase has no successor.
func (p Phase) Next() (Phase, bool) {
	if !p.Valid() || p.Terminal() {
		return p, false
	}
	return p + 1, true
}

// ParsePhase resolves a wire name.
func ParsePhase(raw string) (Phase, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range phaseNames {
		if candidate == name {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", raw)
}

// Trigger names the event an utterance answers.
type Trigger uint8

// Triggers. The first four are key moments eligible for real model calls.
const (
	CreativityEvaluation Trigger = iota
	ImprovementSuggestions
	FinalBiddingDecision
	CreativeEnhancementAnalysis
	OpeningIntroductions
	PersonalityInteractions
	TechnicalAnalysis
	TransitionSegments
	CompetitiveBanter
	CelebrationSequences
)

var triggerNames = [...]string{
	CreativityEvaluation:        "creativity_evaluation",
	ImprovementSuggestions:      "improvement_suggestions",
	FinalBiddingDecision:        "final_bidding_decision",
	CreativeEnhancementAnalysis: "creative_enhancement_analysis",
	OpeningIntroductions:        "opening_introductions",
	PersonalityInteractions:     "personality_interactions",
	TechnicalAnalysis:           "technical_analysis",
	TransitionSegments:          "transition_segments",
	CompetitiveBanter:           "competitive_banter",
	CelebrationSequences:        "celebration_sequences",
}

// String returns the wire name of the trigger.
func (t Trigger) String() string {
	if int(t) < len(triggerNames) {
		return triggerNames[t]
	}
	return fmt.Sprintf("trigger(%d)", uint8(t))
}

// ParseTrigger resolves a wire name.
func ParseTrigger(raw string) (Trigger, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range triggerNames {
		if candidate == name {
			return Trigger(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trigger %q", raw)
}
