package dialogue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/provider"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
	"github.com/shopspring/decimal"
)

// FanOut selects who answers a key moment.
type FanOut uint8

// Fan-out modes.
const (
	// FixedProviders asks one persona per listed provider.
	FixedProviders FanOut = iota
	// PersonaSpecific asks the speaking persona only.
	PersonaSpecific
	// AllPersonas asks every persona in the roster.
	AllPersonas
	// Contextual asks the persona best placed to react to new input.
	Contextual
)

// KeyMoment is a (phase, trigger) pair eligible for real model calls.
type KeyMoment struct {
	Trigger   stage.Trigger
	Phase     stage.Phase
	Weight    decimal.Decimal
	FanOut    FanOut
	Providers []provider.ID
}

// DefaultKeyMoments returns the built-in key moment table.
func DefaultKeyMoments() map[stage.Trigger]KeyMoment {
	return map[stage.Trigger]KeyMoment{
		stage.CreativityEvaluation: {
			Trigger:   stage.CreativityEvaluation,
			Phase:     stage.Discussion,
			Weight:    decimal.RequireFromString("0.6"),
			FanOut:    FixedProviders,
			Providers: []provider.ID{persona.DeepSeek, persona.Zhipu, persona.Qwen},
		},
		stage.ImprovementSuggestions: {
			Trigger: stage.ImprovementSuggestions,
			Phase:   stage.Discussion,
			Weight:  decimal.RequireFromString("0.3"),
			FanOut:  PersonaSpecific,
		},
		stage.FinalBiddingDecision: {
			Trigger: stage.FinalBiddingDecision,
			Phase:   stage.Bidding,
			Weight:  decimal.RequireFromString("0.8"),
			FanOut:  AllPersonas,
		},
		stage.CreativeEnhancementAnalysis: {
			Trigger: stage.CreativeEnhancementAnalysis,
			Phase:   stage.Discussion,
			Weight:  decimal.RequireFromString("0.4"),
			FanOut:  Contextual,
		},
	}
}

// ParseWeights reads "trigger:weight" pairs separated by commas.
func ParseWeights(raw string) (map[stage.Trigger]decimal.Decimal, error) {
	out := make(map[stage.Trigger]decimal.Decimal)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("cost weight %q: expected trigger:weight", part)
		}
		trigger, err := stage.ParseTrigger(name)
		if err != nil {
			return nil, fmt.Errorf("cost weight %q: %w", part, err)
		}
		weight, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("cost weight %q: %w", part, err)
		}
		if weight.IsNegative() {
			return nil, fmt.Errorf("cost weight %q: must not be negative", part)
		}
		out[trigger] = weight
	}
	return out, nil
}

// FormatWeights renders weights in the form accepted by ParseWeights.
func FormatWeights(weights map[stage.Trigger]decimal.Decimal) string {
	parts := make([]string, 0, len(weights))
	for trigger, weight := range weights {
		parts = append(parts, trigger.String()+":"+weight.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
