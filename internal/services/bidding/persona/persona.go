// Package persona holds the static roster of synthetic bidders.
//
// Personas are immutable configuration: identity, the trait text used to
// build prompts, an ordered provider preference and a bidding style that
// biases template selection and bid deltas.
package persona

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies a persona.
type ID string

// Persona identifiers.
const (
	TechPioneer    ID = "tech-pioneer-alex"
	BusinessTycoon ID = "business-tycoon-wang"
	Artist         ID = "artistic-lin"
	TrendMaster    ID = "trend-master-allen"
	Scholar        ID = "scholar-li"
)

// ProviderID names a model provider.
type ProviderID string

// Provider identifiers.
const (
	DeepSeek ProviderID = "deepseek"
	Zhipu    ProviderID = "zhipu"
	Qwen     ProviderID = "qwen"
)

// BiddingStyle biases bid deltas and template choice.
type BiddingStyle string

// Bidding styles.
const (
	StyleAnalytical   BiddingStyle = "analytical"
	StyleAggressive   BiddingStyle = "aggressive"
	StyleEmotional    BiddingStyle = "emotional"
	StyleStrategic    BiddingStyle = "strategic"
	StyleConservative BiddingStyle = "conservative"
)

// Persona is one synthetic participant.
type Persona struct {
	ID           ID
	Name         string
	Specialty    string
	Traits       []string
	CatchPhrase  string
	Providers    []ProviderID
	BiddingStyle BiddingStyle
	SystemPrompt string
}

// Primary returns the preferred provider.
func (p Persona) Primary() ProviderID {
	if len(p.Providers) == 0 {
		return ""
	}
	return p.Providers[0]
}

// BidStep returns the extra amount the persona adds on top of the base
// 10..39 raise. Aggressive bidders push harder, conservative ones hold back.
func (p Persona) BidStep() int {
	switch p.BiddingStyle {
	case StyleAggressive:
		return 10
	case StyleStrategic, StyleEmotional:
		return 5
	case StyleConservative:
		return -5
	default:
		return 0
	}
}

var (
	// ErrUnknownPersona indicates a lookup for an id outside the roster.
	ErrUnknownPersona = errors.New("unknown persona")
	// ErrEmptyRoster indicates a registry without personas.
	ErrEmptyRoster = errors.New("persona roster is empty")
)

// Registry is an ordered, read-only roster.
type Registry struct {
	ordered []Persona
	byID    map[ID]Persona
}

// NewRegistry validates and indexes personas, keeping their order.
func NewRegistry(personas []Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, ErrEmptyRoster
	}
	r := &Registry{
		ordered: make([]Persona, 0, len(personas)),
		byID:    make(map[ID]Persona, len(personas)),
	}
	for _, p := range personas {
		p.ID = ID(strings.TrimSpace(string(p.ID)))
		if p.ID == "" {
			return nil, errors.New("persona id is required")
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona %q", p.ID)
		}
		if len(p.Providers) == 0 {
			return nil, fmt.Errorf("persona %q has no providers", p.ID)
		}
		p.Providers = append([]ProviderID(nil), p.Providers...)
		p.Traits = append([]string(nil), p.Traits...)
		r.ordered = append(r.ordered, p)
		r.byID[p.ID] = p
	}
	return r, nil
}

// Default returns the built-in five-persona roster.
func Default() *Registry {
	r, err := NewRegistry(defaultRoster())
	if err != nil {
		panic(fmt.Sprintf("persona: default roster: %v", err))
	}
	return r
}

// Get returns the persona with id.
func (r *Registry) Get(id ID) (Persona, error) {
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrUnknownPersona, id)
	}
	return p, nil
}

// All returns the roster in registration order.
func (r *Registry) All() []Persona {
	out := make([]Persona, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the roster size.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// At returns the persona at index modulo the roster size.
func (r *Registry) At(index int) Persona {
	if index < 0 {
		index = -index
	}
	return r.ordered[index%len(r.ordered)]
}

// ForProvider returns personas whose primary provider is provider, in roster
// order.
func (r *Registry) ForProvider(provider ProviderID) []Persona {
	var out []Persona
	for _, p := range r.ordered {
		if p.Primary() == provider {
			out = append(out, p)
		}
	}
	return out
}
