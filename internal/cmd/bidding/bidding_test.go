package bidding

import (
	"context"
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("bidding", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.ArchivePath != "data/bidstage.db" {
		t.Fatalf("expected default archive path, got %q", cfg.ArchivePath)
	}
	if cfg.DailyBudget.String() != "100" || cfg.FallbackThreshold.String() != "0.9" {
		t.Fatalf("budget = %s threshold = %s", cfg.DailyBudget, cfg.FallbackThreshold)
	}
	if cfg.ProviderTimeout != 15*time.Second || cfg.SessionGrace != 30*time.Minute {
		t.Fatalf("timeouts = %s %s", cfg.ProviderTimeout, cfg.SessionGrace)
	}
	if cfg.ZhipuModel != "glm-4" || cfg.DashScopeRateLimit != 80 || cfg.MaxViewers != 500 {
		t.Fatalf("provider defaults = %+v", cfg)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("BIDSTAGE_HTTP_ADDR", "env-addr")
	t.Setenv("BIDSTAGE_DAILY_BUDGET", "250")
	t.Setenv("BIDSTAGE_PROVIDER_TIMEOUT", "3s")
	t.Setenv("BIDSTAGE_DEEPSEEK_API_KEY", "sk-test")

	fs := flag.NewFlagSet("bidding", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-http-addr", "flag-addr", "-archive-path", ""})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.ArchivePath != "" {
		t.Fatalf("expected archive disabled, got %q", cfg.ArchivePath)
	}
	if cfg.DailyBudget.String() != "250" || cfg.ProviderTimeout != 3*time.Second || cfg.DeepSeekAPIKey != "sk-test" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestProviderRegistrationsFollowKeys(t *testing.T) {
	fs := flag.NewFlagSet("bidding", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	regs, err := providerRegistrations(cfg)
	if err != nil || len(regs) != 0 {
		t.Fatalf("registrations = %v, %v", regs, err)
	}

	cfg.ZhipuAPIKey = "zk"
	cfg.DashScopeAPIKey = "dk"
	regs, err = providerRegistrations(cfg)
	if err != nil {
		t.Fatalf("registrations: %v", err)
	}
	if len(regs) != 2 || regs[0].ID != persona.Zhipu || regs[1].ID != persona.Qwen {
		t.Fatalf("registrations = %+v", regs)
	}
	if regs[0].RateLimit != 60 || regs[1].Price.String() != "0.004" {
		t.Fatalf("registrations = %+v", regs)
	}
}

func TestBuildWiresArchive(t *testing.T) {
	fs := flag.NewFlagSet("bidding", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-archive-path", filepath.Join(t.TempDir(), "nested", "archive.db")})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	svc, err := build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer svc.close()
	defer svc.runtime.Close()

	if svc.store == nil {
		t.Fatal("expected archive store")
	}
	sess, err := svc.runtime.Session("sub-1")
	if err != nil || sess.SubmissionID() != "sub-1" {
		t.Fatalf("session = %v, %v", sess, err)
	}
}

func TestBuildRejectsBadSettings(t *testing.T) {
	fs := flag.NewFlagSet("bidding", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-archive-path", ""})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	bad := cfg
	bad.PhaseDurations = "warmup:zero"
	if _, err := build(context.Background(), bad); err == nil {
		t.Fatal("expected phase duration error")
	}
	bad = cfg
	bad.CostWeights = "opening_introductions:0.5"
	if _, err := build(context.Background(), bad); err == nil {
		t.Fatal("expected cost weight error")
	}
}
