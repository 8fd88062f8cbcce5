package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/bidstage/internal/random"
	"github.com/louisbranch/bidstage/internal/services/bidding/budget"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/provider"
	"github.com/louisbranch/bidstage/internal/services/bidding/script"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
	"github.com/shopspring/decimal"
)

type harness struct {
	engine  *Engine
	tracker *budget.Tracker
	calls   atomic.Int32
}

func okClient(content string) provider.ClientFunc {
	return func(context.Context, provider.Request) (provider.Completion, error) {
		return provider.Completion{Content: content, Tokens: 10, Model: "m"}, nil
	}
}

func failingClient() provider.ClientFunc {
	return func(context.Context, provider.Request) (provider.Completion, error) {
		return provider.Completion{}, errors.New("upstream down")
	}
}

func newHarness(t *testing.T, clients map[provider.ID]provider.ClientFunc, cooldown time.Duration) *harness {
	t.Helper()
	h := &harness{}

	regs := make([]provider.Registration, 0, len(clients))
	for id, client := range clients {
		regs = append(regs, provider.Registration{
			ID: id,
			Client: provider.ClientFunc(func(ctx context.Context, req provider.Request) (provider.Completion, error) {
				h.calls.Add(1)
				return client(ctx, req)
			}),
			Price: decimal.RequireFromString("0.002"),
		})
	}
	dispatcher, err := provider.NewDispatcher(provider.Config{Providers: regs})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	cfg := budget.DefaultConfig()
	cfg.Cooldown = cooldown
	tracker, err := budget.NewTracker(cfg)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	roster := persona.Default()
	library, err := script.New(script.Config{Roster: roster, Random: random.FromSeed(7)})
	if err != nil {
		t.Fatalf("new library: %v", err)
	}
	h.tracker = tracker
	h.engine, err = NewEngine(Config{
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Library:    library,
		Roster:     roster,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return h
}

func allHealthy() map[provider.ID]provider.ClientFunc {
	return map[provider.ID]provider.ClientFunc{
		persona.DeepSeek: okClient("技术架构扎实，值得深入分析"),
		persona.Zhipu:    okClient("用户体验很有温度，令人心动"),
		persona.Qwen:     okClient("盈利模式清晰，现金流可控"),
	}
}

func evaluationContext() Context {
	return Context{
		SessionID:     "s1",
		ParticipantID: "s1",
		Phase:         stage.Discussion,
		Trigger:       stage.CreativityEvaluation,
		Round:         1,
		IdeaContent:   "AI 驱动的社区菜园",
	}
}

func TestEvaluate(t *testing.T) {
	h := newHarness(t, allHealthy(), 0)

	tests := []struct {
		name string
		ctx  Context
		want Strategy
	}{
		{name: "not a key moment", ctx: Context{Phase: stage.Warmup, Trigger: stage.OpeningIntroductions}, want: Scripted},
		{name: "key trigger in wrong phase", ctx: Context{Phase: stage.Bidding, Trigger: stage.CreativityEvaluation}, want: Scripted},
		{name: "key moment with budget", ctx: evaluationContext(), want: Real},
		{name: "session call limit reached", ctx: func() Context {
			c := evaluationContext()
			c.RealCalls = DefaultSessionCallLimit
			return c
		}(), want: Hybrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.engine.Evaluate(tt.ctx); got != tt.want {
				t.Fatalf("Evaluate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGenerateRealFansOutToFixedProviders(t *testing.T) {
	h := newHarness(t, allHealthy(), 0)

	res := h.engine.Generate(context.Background(), evaluationContext())
	if res.Strategy != Real || !res.RealCall {
		t.Fatalf("strategy = %s, want real", res.Strategy)
	}
	if len(res.Utterances) != 3 {
		t.Fatalf("utterances = %d, want 3", len(res.Utterances))
	}
	wantSpeakers := []persona.ID{persona.TechPioneer, persona.Artist, persona.BusinessTycoon}
	for i, u := range res.Utterances {
		if u.PersonaID != wantSpeakers[i] || u.Origin != OriginReal {
			t.Fatalf("utterance %d = %+v", i, u)
		}
	}
	if !res.Charged.Equal(decimal.RequireFromString("0.6")) {
		t.Fatalf("charged = %s", res.Charged)
	}
	if !res.ProviderCost.Equal(decimal.RequireFromString("0.006")) {
		t.Fatalf("provider cost = %s", res.ProviderCost)
	}
	if usage := h.tracker.Usage(); !usage.Spent.Equal(decimal.RequireFromString("0.6")) {
		t.Fatalf("spent = %s", usage.Spent)
	}
}

func TestGenerateKeepsRealSiblingsWhenOneProviderFails(t *testing.T) {
	clients := allHealthy()
	clients[persona.Zhipu] = failingClient()
	h := newHarness(t, clients, 0)

	res := h.engine.Generate(context.Background(), evaluationContext())
	if res.Strategy != Real {
		t.Fatalf("strategy = %s, want real", res.Strategy)
	}
	failed := res.Utterances[1]
	if failed.Origin != OriginFallback || !failed.Cost.IsZero() {
		t.Fatalf("expected zero-cost fallback, got %+v", failed)
	}
	if res.Utterances[0].Origin != OriginReal || res.Utterances[2].Origin != OriginReal {
		t.Fatalf("siblings should stay real: %+v", res.Utterances)
	}
	if !res.ProviderCost.Equal(decimal.RequireFromString("0.004")) {
		t.Fatalf("provider cost = %s", res.ProviderCost)
	}
}

func TestGenerateOverBudgetNeverReal(t *testing.T) {
	h := newHarness(t, allHealthy(), 0)
	h.tracker.RecordCall("other", decimal.NewFromInt(91))

	for i := 0; i < 20; i++ {
		gctx := evaluationContext()
		gctx.Round = i + 1
		if got := h.engine.Evaluate(gctx); got == Real {
			t.Fatalf("iteration %d: evaluate returned real while over budget", i)
		}
		res := h.engine.Generate(context.Background(), gctx)
		if res.Planned == Real || res.Strategy == Real || res.RealCall {
			t.Fatalf("iteration %d: real strategy while over budget: %+v", i, res)
		}
		for _, u := range res.Utterances {
			if u.Origin == OriginReal {
				t.Fatalf("iteration %d: real utterance while over budget", i)
			}
		}
	}
}

func TestGenerateHybridPrependsInsight(t *testing.T) {
	h := newHarness(t, allHealthy(), 0)
	h.tracker.RecordCall("other", decimal.NewFromInt(91))

	res := h.engine.Generate(context.Background(), evaluationContext())
	if res.Strategy != Hybrid {
		t.Fatalf("strategy = %s, want hybrid", res.Strategy)
	}
	if len(res.Utterances) != 2 {
		t.Fatalf("utterances = %d, want insight plus decoration", len(res.Utterances))
	}
	if res.Utterances[0].Origin != OriginHybrid {
		t.Fatalf("first utterance = %+v", res.Utterances[0])
	}
	if res.Utterances[1].Origin == OriginReal || res.Utterances[1].Origin == OriginHybrid {
		t.Fatalf("decoration should be scripted: %+v", res.Utterances[1])
	}
	if !res.Charged.Equal(DefaultHybridWeight) {
		t.Fatalf("charged = %s", res.Charged)
	}
	if got := h.tracker.CallCount("s1"); got != 1 {
		t.Fatalf("hybrid should record one call, got %d", got)
	}
}

func TestGenerateCooldownDegradesToHybrid(t *testing.T) {
	h := newHarness(t, allHealthy(), time.Hour)

	first := h.engine.Generate(context.Background(), evaluationContext())
	if first.Strategy != Real {
		t.Fatalf("first strategy = %s, want real", first.Strategy)
	}
	second := evaluationContext()
	second.Round = 2
	if got := h.engine.Evaluate(second); got != Hybrid {
		t.Fatalf("evaluate during cooldown = %s, want hybrid", got)
	}
	if res := h.engine.Generate(context.Background(), second); res.Planned != Hybrid {
		t.Fatalf("planned = %s, want hybrid", res.Planned)
	}
}

func TestGenerateAllFailuresFallBackToScripted(t *testing.T) {
	h := newHarness(t, map[provider.ID]provider.ClientFunc{
		persona.DeepSeek: failingClient(),
		persona.Zhipu:    failingClient(),
		persona.Qwen:     failingClient(),
	}, 0)

	res := h.engine.Generate(context.Background(), evaluationContext())
	if res.Planned != Real || res.Strategy != Scripted {
		t.Fatalf("planned=%s strategy=%s, want real then scripted", res.Planned, res.Strategy)
	}
	if len(res.Utterances) != 1 || res.Utterances[0].Content == "" {
		t.Fatalf("expected one scripted line, got %+v", res.Utterances)
	}
	if !h.tracker.Usage().Spent.IsZero() || !h.tracker.Usage().Reserved.IsZero() {
		t.Fatalf("failed real call must not spend budget: %+v", h.tracker.Usage())
	}

	// Every provider is now recovering, so the hybrid insight has no route.
	second := evaluationContext()
	second.ParticipantID = "s2"
	h.tracker.RecordCall("other", decimal.NewFromInt(91))
	calls := h.calls.Load()
	res = h.engine.Generate(context.Background(), second)
	if res.Planned != Hybrid || res.Strategy != Scripted {
		t.Fatalf("planned=%s strategy=%s, want hybrid then scripted", res.Planned, res.Strategy)
	}
	if h.calls.Load() != calls {
		t.Fatal("unhealthy providers must not be dispatched")
	}
}

func TestGenerateFinalBiddingDecisionExtractsBids(t *testing.T) {
	h := newHarness(t, map[provider.ID]provider.ClientFunc{
		persona.DeepSeek: okClient("我出价 260积分，因为技术壁垒很高"),
		persona.Zhipu:    okClient("我出价180元，因为它很有温度"),
		persona.Qwen:     okClient("我出价300积分，能赚钱"),
	}, 0)

	res := h.engine.Generate(context.Background(), Context{
		SessionID:     "s1",
		ParticipantID: "s1",
		Phase:         stage.Bidding,
		Trigger:       stage.FinalBiddingDecision,
		Round:         4,
		CurrentBids:   map[persona.ID]int{persona.TechPioneer: 120},
	})
	if res.Strategy != Real {
		t.Fatalf("strategy = %s, want real", res.Strategy)
	}
	if len(res.Utterances) != persona.Default().Len() {
		t.Fatalf("utterances = %d, want one per persona", len(res.Utterances))
	}
	for _, u := range res.Utterances {
		if u.Bid == 0 {
			t.Fatalf("expected a bid from %+v", u)
		}
		if u.Emotion != EmotionExcited {
			t.Fatalf("emotion = %q", u.Emotion)
		}
	}
	if !res.Charged.Equal(decimal.RequireFromString("0.8")) {
		t.Fatalf("charged = %s", res.Charged)
	}
}

func TestGenerateScriptedForOrdinaryTriggers(t *testing.T) {
	h := newHarness(t, allHealthy(), 0)

	res := h.engine.Generate(context.Background(), Context{
		SessionID: "s1",
		Phase:     stage.Warmup,
		Trigger:   stage.OpeningIntroductions,
		Round:     1,
	})
	if res.Strategy != Scripted || res.Planned != Scripted {
		t.Fatalf("strategy = %s", res.Strategy)
	}
	if h.calls.Load() != 0 {
		t.Fatal("scripted path must not call providers")
	}
	if len(res.Utterances) != 1 || res.Utterances[0].Origin != OriginScripted {
		t.Fatalf("unexpected utterances: %+v", res.Utterances)
	}
}

func TestNewEngineWeightOverrides(t *testing.T) {
	base := newHarness(t, allHealthy(), 0).engine
	cfg := Config{
		Tracker:    base.tracker,
		Dispatcher: base.dispatcher,
		Library:    base.library,
		Roster:     base.roster,
		Weights:    map[stage.Trigger]decimal.Decimal{stage.CreativityEvaluation: decimal.RequireFromString("1.5")},
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	moment, ok := engine.KeyMoment(stage.Discussion, stage.CreativityEvaluation)
	if !ok || !moment.Weight.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("weight override not applied: %+v", moment)
	}

	cfg.Weights = map[stage.Trigger]decimal.Decimal{stage.CompetitiveBanter: decimal.NewFromInt(1)}
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for weight on a scripted trigger")
	}
	if _, err := NewEngine(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestParseWeights(t *testing.T) {
	weights, err := ParseWeights("creativity_evaluation:0.6, final_bidding_decision:0.8")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !weights[stage.FinalBiddingDecision].Equal(decimal.RequireFromString("0.8")) {
		t.Fatalf("weights = %v", weights)
	}
	if got := FormatWeights(weights); got != "creativity_evaluation:0.6,final_bidding_decision:0.8" {
		t.Fatalf("format = %q", got)
	}
	for _, raw := range []string{"creativity_evaluation", "bogus:1", "creativity_evaluation:x", "creativity_evaluation:-1"} {
		if _, err := ParseWeights(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestExtractBid(t *testing.T) {
	tests := []struct {
		content string
		want    int
		ok      bool
	}{
		{content: "我出价200积分，因为...", want: 200, ok: true},
		{content: "我决定出价 150 元", want: 150, ok: true},
		{content: "出价还早", ok: false},
		{content: "我出价0积分", ok: false},
	}
	for _, tt := range tests {
		got, ok := ExtractBid(tt.content)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ExtractBid(%q) = %d %v, want %d %v", tt.content, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDetectEmotion(t *testing.T) {
	tests := []struct {
		content string
		phase   stage.Phase
		want    string
	}{
		{content: "我愿意投资", phase: stage.Discussion, want: EmotionExcited},
		{content: "风险太大了", phase: stage.Bidding, want: EmotionWorried},
		{content: "一定会成功", phase: stage.Warmup, want: EmotionHappy},
		{content: "从专业角度看", phase: stage.Result, want: EmotionConfident},
		{content: "嗯", phase: stage.Warmup, want: EmotionExcited},
		{content: "嗯", phase: stage.Discussion, want: EmotionConfident},
		{content: "嗯", phase: stage.Prediction, want: EmotionWorried},
		{content: "嗯", phase: stage.Result, want: EmotionHappy},
	}
	for _, tt := range tests {
		if got := DetectEmotion(tt.content, tt.phase); got != tt.want {
			t.Fatalf("DetectEmotion(%q, %s) = %q, want %q", tt.content, tt.phase, got, tt.want)
		}
	}
	if !strings.Contains(Hybrid.String(), "hybrid") {
		t.Fatal("unexpected strategy name")
	}
}
