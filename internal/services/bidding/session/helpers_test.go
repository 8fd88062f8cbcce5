package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/bidstage/internal/services/bidding/dialogue"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
	"github.com/shopspring/decimal"
)

// fixedSource always returns the same draws.
type fixedSource struct {
	f float64
	n int
}

func (s fixedSource) Float64() float64 { return s.f }

func (s fixedSource) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return s.n % n
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []dialogue.Context
	seen     chan dialogue.Context
	respond  func(dialogue.Context) dialogue.Result
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{seen: make(chan dialogue.Context, 32)}
}

func (g *fakeGenerator) Generate(_ context.Context, gctx dialogue.Context) dialogue.Result {
	g.mu.Lock()
	g.requests = append(g.requests, gctx)
	respond := g.respond
	g.mu.Unlock()
	select {
	case g.seen <- gctx:
	default:
	}
	if respond != nil {
		return respond(gctx)
	}
	return dialogue.Result{Strategy: dialogue.Scripted, Utterances: []dialogue.Utterance{{
		PersonaID: persona.TechPioneer,
		Content:   "让我从技术角度看看",
		Emotion:   dialogue.EmotionConfident,
		Origin:    dialogue.OriginScripted,
		Cost:      decimal.Zero,
	}}}
}

type fakeBudget struct{ over bool }

func (b fakeBudget) IsOverBudget() bool { return b.over }

func quickDurations() Durations {
	return Durations{
		stage.Warmup:     5,
		stage.Discussion: 5,
		stage.Bidding:    5,
		stage.Prediction: 5,
		stage.Result:     5,
	}
}

// manualOptions disables the timer, spontaneous dialogue and opening lines.
func manualOptions() Options {
	return Options{
		Durations:     quickDurations(),
		Probabilities: Probabilities{},
		ManualTicks:   true,
		Schedule:      func(time.Duration, func()) {},
	}
}

func newTestSession(t *testing.T, gen Generator, rnd fixedSource, opts Options) *Session {
	t.Helper()
	s, err := New(Config{
		SessionID:    "ses_test",
		SubmissionID: "sub-1",
		Generator:    gen,
		Roster:       persona.Default(),
		Budget:       fakeBudget{},
		Random:       rnd,
		Options:      opts,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// drain reads every buffered event without blocking.
func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitForEvent(t *testing.T, sub *Subscription, eventType string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("stream closed before %s", eventType)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func countEvents(events []Event, eventType string) int {
	n := 0
	for _, ev := range events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func tickN(s *Session, n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}

func bidResult(id persona.ID, amount int) dialogue.Result {
	return dialogue.Result{Utterances: []dialogue.Utterance{{
		PersonaID: id,
		Content:   "我出价了",
		Bid:       amount,
		Origin:    dialogue.OriginReal,
		Cost:      decimal.Zero,
	}}}
}
