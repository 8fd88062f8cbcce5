// Package script selects canned utterances for low-stakes moments.
//
// Templates are keyed by trigger and filtered by phase, by the speaking
// persona and by per-round reuse within a session. A weighted random pick
// chooses the template, then a second filter-then-random pass chooses the
// variant whose conditions hold.
package script

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/louisbranch/bidstage/internal/platform/locale"
	"github.com/louisbranch/bidstage/internal/random"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
)

// ConditionKind names the context value a condition inspects.
type ConditionKind uint8

// Condition kinds.
const (
	CreativityScore ConditionKind = iota + 1
	Round
	HighestBid
)

// Operator compares a context value against a condition.
type Operator uint8

// Operators.
const (
	GreaterThan Operator = iota + 1
	LessThan
	Equal
	Range
)

// Condition restricts when a variant applies. Range is inclusive of
// Value and Max.
type Condition struct {
	Kind  ConditionKind
	Op    Operator
	Value int
	Max   int
}

// BidRange bounds the bid a variant carries. The zero value means no bid.
type BidRange struct {
	Min int
	Max int
}

func (r BidRange) empty() bool {
	return r.Min <= 0 && r.Max <= 0
}

// Variant is one phrasing of a template.
type Variant struct {
	Content    string
	Emotion    string
	Conditions []Condition
	BidRange   BidRange
}

// Template groups variants for one trigger. An empty Persona lets any
// persona speak it.
type Template struct {
	ID        string
	Phases    []stage.Phase
	AllPhases bool
	Trigger   stage.Trigger
	Persona   persona.ID
	Weight    float64
	Variants  []Variant
}

func (t Template) matchesPhase(phase stage.Phase) bool {
	if t.AllPhases {
		return true
	}
	for _, p := range t.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Context is the session state templates are selected against. A zero
// CreativityScore means the score is unknown.
type Context struct {
	SessionID       string
	Phase           stage.Phase
	Trigger         stage.Trigger
	Round           int
	CreativityScore int
	HighestBid      int
	Speaker         persona.ID
}

// Line is a selected utterance.
type Line struct {
	PersonaID  persona.ID
	Content    string
	Emotion    string
	Bid        int
	TemplateID string
	Fallback   bool
}

// Config configures a Library.
type Config struct {
	Templates []Template
	Roster    *persona.Registry
	Random    random.Source
	Locale    locale.Locale
}

// Library is safe for concurrent use.
type Library struct {
	mu        sync.Mutex
	byTrigger map[stage.Trigger][]Template
	used      map[string]map[usedKey]struct{}
	roster    *persona.Registry
	rnd       random.Source
	locale    locale.Locale
}

type usedKey struct {
	templateID string
	round      int
}

// New builds a library. Templates default to DefaultTemplates.
func New(cfg Config) (*Library, error) {
	if cfg.Roster == nil {
		return nil, errors.New("roster is required")
	}
	if cfg.Random == nil {
		return nil, errors.New("random source is required")
	}
	templates := cfg.Templates
	if templates == nil {
		templates = DefaultTemplates()
	}
	lib := &Library{
		byTrigger: make(map[stage.Trigger][]Template),
		used:      make(map[string]map[usedKey]struct{}),
		roster:    cfg.Roster,
		rnd:       cfg.Random,
		locale:    cfg.Locale,
	}
	seen := make(map[string]struct{}, len(templates))
	for _, tpl := range templates {
		if strings.TrimSpace(tpl.ID) == "" {
			return nil, errors.New("template id is required")
		}
		if _, dup := seen[tpl.ID]; dup {
			return nil, fmt.Errorf("template %s defined twice", tpl.ID)
		}
		seen[tpl.ID] = struct{}{}
		if len(tpl.Variants) == 0 {
			return nil, fmt.Errorf("template %s has no variants", tpl.ID)
		}
		if tpl.Weight <= 0 {
			return nil, fmt.Errorf("template %s weight must be positive", tpl.ID)
		}
		if tpl.Persona != "" {
			if _, err := cfg.Roster.Get(tpl.Persona); err != nil {
				return nil, fmt.Errorf("template %s: %w", tpl.ID, err)
			}
		}
		lib.byTrigger[tpl.Trigger] = append(lib.byTrigger[tpl.Trigger], tpl)
	}
	return lib, nil
}

// Select picks an utterance for ctx. It never fails: when nothing applies
// it returns a neutral fallback line.
func (l *Library) Select(ctx Context) Line {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidates := l.candidates(ctx)
	if len(candidates) == 0 {
		return l.fallbackLocked(ctx)
	}
	tpl := l.pickWeighted(candidates)
	l.markUsed(ctx.SessionID, tpl.ID, ctx.Round)
	variant := l.pickVariant(tpl, ctx)

	speaker := tpl.Persona
	if speaker == "" {
		speaker = ctx.Speaker
	}
	if speaker == "" {
		speaker = l.roster.At(ctx.Round).ID
	}
	line := Line{
		PersonaID:  speaker,
		Content:    Personalize(variant.Content, ctx),
		Emotion:    variant.Emotion,
		TemplateID: tpl.ID,
	}
	if !variant.BidRange.empty() {
		line.Bid = l.bidAmount(variant.BidRange, ctx.CreativityScore)
	}
	return line
}

// Fallback returns one of the neutral lines used when no template applies.
func (l *Library) Fallback(ctx Context) Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fallbackLocked(ctx)
}

// Forget drops the reuse history of a session.
func (l *Library) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.used, sessionID)
}

func (l *Library) candidates(ctx Context) []Template {
	var out []Template
	used := l.used[ctx.SessionID]
	for _, tpl := range l.byTrigger[ctx.Trigger] {
		if !tpl.matchesPhase(ctx.Phase) {
			continue
		}
		if ctx.Speaker != "" && tpl.Persona != "" && tpl.Persona != ctx.Speaker {
			continue
		}
		if _, ok := used[usedKey{templateID: tpl.ID, round: ctx.Round}]; ok {
			continue
		}
		out = append(out, tpl)
	}
	return out
}

func (l *Library) markUsed(sessionID, templateID string, round int) {
	byKey, ok := l.used[sessionID]
	if !ok {
		byKey = make(map[usedKey]struct{})
		l.used[sessionID] = byKey
	}
	byKey[usedKey{templateID: templateID, round: round}] = struct{}{}
}

func (l *Library) pickWeighted(templates []Template) Template {
	total := 0.0
	for _, tpl := range templates {
		total += tpl.Weight
	}
	target := l.rnd.Float64() * total
	for _, tpl := range templates {
		target -= tpl.Weight
		if target <= 0 {
			return tpl
		}
	}
	return templates[len(templates)-1]
}

func (l *Library) pickVariant(tpl Template, ctx Context) Variant {
	applicable := make([]Variant, 0, len(tpl.Variants))
	for _, v := range tpl.Variants {
		if variantApplies(v, ctx) {
			applicable = append(applicable, v)
		}
	}
	if len(applicable) == 0 {
		return tpl.Variants[0]
	}
	return applicable[l.rnd.IntN(len(applicable))]
}

func variantApplies(v Variant, ctx Context) bool {
	for _, cond := range v.Conditions {
		var value int
		switch cond.Kind {
		case CreativityScore:
			if ctx.CreativityScore == 0 {
				continue
			}
			value = ctx.CreativityScore
		case Round:
			value = ctx.Round
		case HighestBid:
			value = ctx.HighestBid
		default:
			continue
		}
		if !cond.holds(value) {
			return false
		}
	}
	return true
}

func (c Condition) holds(value int) bool {
	switch c.Op {
	case GreaterThan:
		return value > c.Value
	case LessThan:
		return value < c.Value
	case Equal:
		return value == c.Value
	case Range:
		return value >= c.Value && value <= c.Max
	default:
		return true
	}
}

// bidAmount draws uniformly from r, scales by the creativity score when one
// is known and rounds to the nearest multiple of five.
func (l *Library) bidAmount(r BidRange, score int) int {
	base := float64(r.Min) + l.rnd.Float64()*float64(r.Max-r.Min)
	if score > 0 {
		base = math.Floor(base * (0.5 + float64(score)/100))
	}
	return int(math.Round(base/5) * 5)
}

var fallbackLines = map[locale.Locale][]string{
	locale.Chinese: {
		"让我仔细考虑一下这个创意...",
		"这确实是个有趣的想法！",
		"我需要更多时间来分析...",
		"大家的观点都很有价值！",
	},
	locale.English: {
		"Let me think this idea through carefully...",
		"That really is an interesting idea!",
		"I need a bit more time to analyze this...",
		"Everyone's points are valuable!",
	},
}

func (l *Library) fallbackLocked(ctx Context) Line {
	lines, ok := fallbackLines[l.locale]
	if !ok {
		lines = fallbackLines[locale.Chinese]
	}
	speaker := ctx.Speaker
	if speaker == "" {
		speaker = l.roster.At(0).ID
	}
	return Line{
		PersonaID: speaker,
		Content:   lines[l.rnd.IntN(len(lines))],
		Emotion:   "confident",
		Fallback:  true,
	}
}
