package persona

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultRosterOrderAndProviders(t *testing.T) {
	r := Default()
	if r.Len() != 5 {
		t.Fatalf("expected 5 personas, got %d", r.Len())
	}
	all := r.All()
	if all[0].ID != TechPioneer || all[4].ID != Scholar {
		t.Fatalf("unexpected roster order: %v, %v", all[0].ID, all[4].ID)
	}
	for _, p := range all {
		if len(p.Providers) < 2 {
			t.Fatalf("persona %s should have primary and fallback providers", p.ID)
		}
		if strings.TrimSpace(p.SystemPrompt) == "" {
			t.Fatalf("persona %s has no system prompt", p.ID)
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	_, err := Default().Get("nobody")
	if !errors.Is(err, ErrUnknownPersona) {
		t.Fatalf("expected unknown persona error, got %v", err)
	}
}

func TestNewRegistryValidation(t *testing.T) {
	if _, err := NewRegistry(nil); !errors.Is(err, ErrEmptyRoster) {
		t.Fatalf("expected empty roster error, got %v", err)
	}
	dup := []Persona{
		{ID: "a", Providers: []ProviderID{DeepSeek}},
		{ID: "a", Providers: []ProviderID{Zhipu}},
	}
	if _, err := NewRegistry(dup); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := NewRegistry([]Persona{{ID: "a"}}); err == nil {
		t.Fatal("expected missing provider error")
	}
}

func TestAtWrapsAround(t *testing.T) {
	r := Default()
	if r.At(5).ID != r.At(0).ID {
		t.Fatal("expected index to wrap")
	}
	if r.At(-1).ID != r.At(1).ID {
		t.Fatal("expected negative index to be mirrored")
	}
}

func TestForProvider(t *testing.T) {
	got := Default().ForProvider(DeepSeek)
	if len(got) != 2 || got[0].ID != TechPioneer || got[1].ID != Scholar {
		t.Fatalf("unexpected deepseek personas: %+v", got)
	}
}

func TestBuildUserPromptPhaseInstructions(t *testing.T) {
	prompt := BuildUserPrompt(PromptContext{
		IdeaContent: "智能花盆",
		Phase:       "bidding",
		Round:       2,
		CurrentBids: map[ID]int{Scholar: 80, TechPioneer: 120},
	})
	for _, want := range []string{"创意内容：智能花盆", "轮次：2", "我出价X积分", "scholar-li: 80积分", "tech-pioneer-alex: 120积分"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Index(prompt, "scholar-li") > strings.Index(prompt, "tech-pioneer-alex") {
		t.Fatal("expected bids sorted by persona id")
	}
}

func TestBuildUserPromptDefaultsIdeaAndInsight(t *testing.T) {
	prompt := BuildUserPrompt(PromptContext{Phase: "discussion", Insight: true})
	if !strings.Contains(prompt, missingIdea) {
		t.Fatal("expected placeholder idea")
	}
	if !strings.Contains(prompt, "一句话") {
		t.Fatal("expected insight instruction")
	}
}
