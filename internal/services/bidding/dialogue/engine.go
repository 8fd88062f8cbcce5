// Package dialogue decides how each utterance is produced.
//
// Key moments get real model calls while the budget allows it. When the
// budget check fails they degrade to a hybrid of one short insight call
// plus a scripted line. Everything else is scripted. Scripted content is
// the universal fallback, so Generate always returns at least one line.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/bidstage/internal/services/bidding/budget"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/provider"
	"github.com/louisbranch/bidstage/internal/services/bidding/script"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
	"github.com/shopspring/decimal"
)

// Strategy is the generation path chosen for a request.
type Strategy uint8

// Strategies.
const (
	Scripted Strategy = iota
	Real
	Hybrid
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Real:
		return "real"
	case Hybrid:
		return "hybrid"
	default:
		return "scripted"
	}
}

// Origin records where an utterance came from.
type Origin string

// Origins.
const (
	OriginReal     Origin = "real-model"
	OriginScripted Origin = "scripted"
	OriginHybrid   Origin = "hybrid"
	OriginFallback Origin = "fallback"
)

// Defaults mirrored by the command configuration.
const (
	DefaultSessionCallLimit = 10
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 500
	DefaultSpontaneousMax   = 200
	DefaultInsightMaxTokens = 100
)

// DefaultHybridWeight is the budget charged for one hybrid insight.
var DefaultHybridWeight = decimal.RequireFromString("0.3")

// Dispatcher is the provider surface the engine needs.
type Dispatcher interface {
	CallMany(ctx context.Context, calls []provider.Call) []provider.Response
	Call(ctx context.Context, id provider.ID, req provider.Request) (provider.Response, error)
	Route(preferences []provider.ID) (provider.ID, bool)
	Fallback(id provider.ID, personaID persona.ID, cause error) provider.Response
}

// Context is the session state a request is generated against.
type Context struct {
	SessionID       string
	ParticipantID   string
	Phase           stage.Phase
	Trigger         stage.Trigger
	Round           int
	IdeaContent     string
	CreativityScore int
	HighestBid      int
	CurrentBids     map[persona.ID]int
	PreviousLines   []string
	Speaker         persona.ID
	RealCalls       int
	Spontaneous     bool
}

// Utterance is one generated line, uniform across strategies.
type Utterance struct {
	PersonaID persona.ID
	Content   string
	Emotion   string
	Bid       int
	Origin    Origin
	Provider  provider.ID
	Cost      decimal.Decimal
	Tokens    int
}

// Result is the outcome of Generate.
type Result struct {
	Planned      Strategy
	Strategy     Strategy
	Utterances   []Utterance
	Charged      decimal.Decimal
	ProviderCost decimal.Decimal
	RealCall     bool
}

// Config configures an Engine.
type Config struct {
	Tracker          *budget.Tracker
	Dispatcher       Dispatcher
	Library          *script.Library
	Roster           *persona.Registry
	KeyMoments       map[stage.Trigger]KeyMoment
	Weights          map[stage.Trigger]decimal.Decimal
	HybridWeight     decimal.Decimal
	SessionCallLimit int
	Temperature      float64
	MaxTokens        int
}

// Engine is safe for concurrent use.
type Engine struct {
	tracker      *budget.Tracker
	dispatcher   Dispatcher
	library      *script.Library
	roster       *persona.Registry
	moments      map[stage.Trigger]KeyMoment
	hybridWeight decimal.Decimal
	callLimit    int
	temperature  float64
	maxTokens    int
}

// NewEngine validates cfg and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Tracker == nil:
		return nil, errors.New("budget tracker is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("provider dispatcher is required")
	case cfg.Library == nil:
		return nil, errors.New("template library is required")
	case cfg.Roster == nil:
		return nil, errors.New("persona roster is required")
	}
	moments := cfg.KeyMoments
	if moments == nil {
		moments = DefaultKeyMoments()
	}
	resolved := make(map[stage.Trigger]KeyMoment, len(moments))
	for trigger, moment := range moments {
		if weight, ok := cfg.Weights[trigger]; ok {
			moment.Weight = weight
		}
		resolved[trigger] = moment
	}
	for trigger := range cfg.Weights {
		if _, ok := resolved[trigger]; !ok {
			return nil, fmt.Errorf("cost weight for %s: not a key moment", trigger)
		}
	}
	if cfg.HybridWeight.IsZero() {
		cfg.HybridWeight = DefaultHybridWeight
	}
	if cfg.SessionCallLimit <= 0 {
		cfg.SessionCallLimit = DefaultSessionCallLimit
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Engine{
		tracker:      cfg.Tracker,
		dispatcher:   cfg.Dispatcher,
		library:      cfg.Library,
		roster:       cfg.Roster,
		moments:      resolved,
		hybridWeight: cfg.HybridWeight,
		callLimit:    cfg.SessionCallLimit,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// KeyMoment returns the key moment for ctx when its phase and trigger
// match one.
func (e *Engine) KeyMoment(phase stage.Phase, trigger stage.Trigger) (KeyMoment, bool) {
	moment, ok := e.moments[trigger]
	if !ok || moment.Phase != phase {
		return KeyMoment{}, false
	}
	return moment, true
}

// SessionCallLimit returns the per-session real call cap.
func (e *Engine) SessionCallLimit() int {
	return e.callLimit
}

// Evaluate reports the strategy Generate would plan for ctx right now. It
// holds no budget; Generate repeats the check atomically.
func (e *Engine) Evaluate(ctx Context) Strategy {
	if _, ok := e.KeyMoment(ctx.Phase, ctx.Trigger); !ok {
		return Scripted
	}
	if ctx.RealCalls >= e.callLimit || e.tracker.IsOverBudget() || e.tracker.IsInCooldown(ctx.ParticipantID) {
		return Hybrid
	}
	return Real
}

// Generate produces utterances for ctx. Failures degrade toward scripted
// content and are never returned. A successful real call charges the
// trigger's cost weight; a successful hybrid call charges HybridWeight
// instead.
func (e *Engine) Generate(ctx context.Context, gctx Context) Result {
	moment, key := e.KeyMoment(gctx.Phase, gctx.Trigger)
	if !key {
		return e.scripted(gctx, Scripted)
	}
	if gctx.RealCalls < e.callLimit {
		reservation, err := e.tracker.Reserve(gctx.ParticipantID, moment.Weight)
		if err == nil {
			if res, ok := e.real(ctx, gctx, moment, reservation); ok {
				return res
			}
			return e.scripted(gctx, Real)
		}
		log.Printf("bidding: real call declined session=%s trigger=%s reason=%v", gctx.SessionID, gctx.Trigger, err)
	}
	if res, ok := e.hybrid(ctx, gctx); ok {
		return res
	}
	return e.scripted(gctx, Hybrid)
}

func (e *Engine) real(ctx context.Context, gctx Context, moment KeyMoment, reservation *budget.Reservation) (Result, bool) {
	calls := e.plan(gctx, moment)
	responses := e.dispatcher.CallMany(ctx, calls)

	res := Result{Planned: Real, Strategy: Real, ProviderCost: decimal.Zero}
	succeeded := 0
	for _, resp := range responses {
		if !resp.Fallback {
			succeeded++
		}
	}
	if succeeded == 0 {
		reservation.Release()
		log.Printf("bidding: real call produced no content session=%s trigger=%s", gctx.SessionID, gctx.Trigger)
		return Result{}, false
	}
	reservation.Commit()
	res.Charged = reservation.Cost()
	res.RealCall = true
	for _, resp := range responses {
		u := e.fromResponse(resp, gctx, OriginReal)
		res.ProviderCost = res.ProviderCost.Add(resp.Cost)
		res.Utterances = append(res.Utterances, u)
	}
	return res, true
}

func (e *Engine) hybrid(ctx context.Context, gctx Context) (Result, bool) {
	speaker := e.speaker(gctx)
	id, ok := e.dispatcher.Route(speaker.Providers)
	if !ok {
		return Result{}, false
	}
	req := e.request(speaker, gctx, true)
	resp, err := e.dispatcher.Call(ctx, id, req)
	if err != nil {
		log.Printf("bidding: hybrid insight failed session=%s provider=%s err=%v", gctx.SessionID, id, err)
		return Result{}, false
	}
	e.tracker.RecordCall(gctx.ParticipantID, e.hybridWeight)

	insight := e.fromResponse(resp, gctx, OriginHybrid)
	insight.Bid = 0
	decoration := e.scripted(gctx, Hybrid).Utterances
	return Result{
		Planned:      Hybrid,
		Strategy:     Hybrid,
		Utterances:   append([]Utterance{insight}, decoration...),
		Charged:      e.hybridWeight,
		ProviderCost: resp.Cost,
	}, true
}

func (e *Engine) scripted(gctx Context, planned Strategy) Result {
	line := e.library.Select(script.Context{
		SessionID:       gctx.SessionID,
		Phase:           gctx.Phase,
		Trigger:         gctx.Trigger,
		Round:           gctx.Round,
		CreativityScore: gctx.CreativityScore,
		HighestBid:      gctx.HighestBid,
		Speaker:         gctx.Speaker,
	})
	origin := OriginScripted
	if line.Fallback {
		origin = OriginFallback
	}
	emotion := line.Emotion
	if emotion == "" {
		emotion = DetectEmotion(line.Content, gctx.Phase)
	}
	return Result{
		Planned:  planned,
		Strategy: Scripted,
		Utterances: []Utterance{{
			PersonaID: line.PersonaID,
			Content:   line.Content,
			Emotion:   emotion,
			Bid:       line.Bid,
			Origin:    origin,
			Cost:      decimal.Zero,
		}},
		Charged:      decimal.Zero,
		ProviderCost: decimal.Zero,
	}
}

// plan builds one call per answering persona for a key moment.
func (e *Engine) plan(gctx Context, moment KeyMoment) []provider.Call {
	var speakers []persona.Persona
	var pinned []provider.ID
	switch moment.FanOut {
	case FixedProviders:
		for i, id := range moment.Providers {
			p := e.roster.At(i)
			if matches := e.roster.ForProvider(id); len(matches) > 0 {
				p = matches[0]
			}
			speakers = append(speakers, p)
			pinned = append(pinned, id)
		}
	case AllPersonas:
		speakers = e.roster.All()
	default:
		speakers = []persona.Persona{e.speaker(gctx)}
	}

	calls := make([]provider.Call, 0, len(speakers))
	for i, p := range speakers {
		id := p.Primary()
		if i < len(pinned) {
			id = pinned[i]
		} else if routed, ok := e.dispatcher.Route(p.Providers); ok {
			id = routed
		}
		calls = append(calls, provider.Call{Provider: id, Request: e.request(p, gctx, false)})
	}
	return calls
}

func (e *Engine) speaker(gctx Context) persona.Persona {
	if gctx.Speaker != "" {
		if p, err := e.roster.Get(gctx.Speaker); err == nil {
			return p
		}
	}
	return e.roster.At(gctx.Round)
}

func (e *Engine) request(p persona.Persona, gctx Context, insight bool) provider.Request {
	maxTokens := e.maxTokens
	switch {
	case insight:
		maxTokens = DefaultInsightMaxTokens
	case gctx.Spontaneous:
		maxTokens = DefaultSpontaneousMax
	}
	return provider.Request{
		PersonaID:    p.ID,
		SystemPrompt: p.SystemPrompt,
		UserPrompt: persona.BuildUserPrompt(persona.PromptContext{
			IdeaContent:     gctx.IdeaContent,
			Phase:           gctx.Phase.String(),
			Trigger:         gctx.Trigger.String(),
			Round:           gctx.Round,
			CreativityScore: gctx.CreativityScore,
			PreviousLines:   gctx.PreviousLines,
			CurrentBids:     gctx.CurrentBids,
			Insight:         insight,
		}),
		Temperature: e.temperature,
		MaxTokens:   maxTokens,
	}
}

func (e *Engine) fromResponse(resp provider.Response, gctx Context, origin Origin) Utterance {
	content := strings.TrimSpace(resp.Content)
	u := Utterance{
		PersonaID: resp.PersonaID,
		Content:   content,
		Emotion:   DetectEmotion(content, gctx.Phase),
		Origin:    origin,
		Provider:  resp.Provider,
		Cost:      resp.Cost,
		Tokens:    resp.Tokens,
	}
	if resp.Fallback {
		u.Origin = OriginFallback
		u.Cost = decimal.Zero
		return u
	}
	if gctx.Phase == stage.Bidding {
		if bid, ok := ExtractBid(content); ok {
			u.Bid = bid
		}
	}
	return u
}
