// Package bidding parses bidding command flags and composes the service.
package bidding

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	entrypoint "github.com/louisbranch/bidstage/internal/platform/cmd"
	"github.com/louisbranch/bidstage/internal/platform/locale"
	"github.com/louisbranch/bidstage/internal/random"
	server "github.com/louisbranch/bidstage/internal/services/bidding/app"
	"github.com/louisbranch/bidstage/internal/services/bidding/budget"
	"github.com/louisbranch/bidstage/internal/services/bidding/dialogue"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/provider"
	"github.com/louisbranch/bidstage/internal/services/bidding/script"
	"github.com/louisbranch/bidstage/internal/services/bidding/session"
	"github.com/louisbranch/bidstage/internal/services/bidding/storage/sqlite"
)

// Config holds bidding command configuration. Variables are read under the
// BIDSTAGE_ prefix.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR"    envDefault:":8090"`
	ArchivePath string `env:"ARCHIVE_PATH" envDefault:"data/bidstage.db"`
	Locale      string `env:"LOCALE"       envDefault:"zh-CN"`

	DeepSeekAPIKey    string          `env:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL   string          `env:"DEEPSEEK_BASE_URL"   envDefault:"https://api.deepseek.com/v1"`
	DeepSeekModel     string          `env:"DEEPSEEK_MODEL"      envDefault:"deepseek-chat"`
	DeepSeekRateLimit int             `env:"DEEPSEEK_RATE_LIMIT" envDefault:"100"`
	DeepSeekPrice     decimal.Decimal `env:"DEEPSEEK_PRICE"      envDefault:"0.002"`

	ZhipuAPIKey    string          `env:"ZHIPU_API_KEY"`
	ZhipuBaseURL   string          `env:"ZHIPU_BASE_URL"   envDefault:"https://open.bigmodel.cn/api/paas/v4"`
	ZhipuModel     string          `env:"ZHIPU_MODEL"      envDefault:"glm-4"`
	ZhipuRateLimit int             `env:"ZHIPU_RATE_LIMIT" envDefault:"60"`
	ZhipuPrice     decimal.Decimal `env:"ZHIPU_PRICE"      envDefault:"0.005"`

	DashScopeAPIKey    string          `env:"DASHSCOPE_API_KEY"`
	DashScopeURL       string          `env:"DASHSCOPE_URL"`
	DashScopeModel     string          `env:"DASHSCOPE_MODEL"      envDefault:"qwen-max"`
	DashScopeRateLimit int             `env:"DASHSCOPE_RATE_LIMIT" envDefault:"80"`
	DashScopePrice     decimal.Decimal `env:"DASHSCOPE_PRICE"      envDefault:"0.004"`

	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT"  envDefault:"15s"`
	ProviderRecovery time.Duration `env:"PROVIDER_RECOVERY" envDefault:"5m"`

	DailyBudget         decimal.Decimal `env:"DAILY_BUDGET"         envDefault:"100"`
	FallbackThreshold   decimal.Decimal `env:"FALLBACK_THRESHOLD"   envDefault:"0.9"`
	ParticipantCooldown time.Duration   `env:"PARTICIPANT_COOLDOWN" envDefault:"5m"`
	SessionCallLimit    int             `env:"SESSION_CALL_LIMIT"   envDefault:"10"`
	CostWeights         string          `env:"COST_WEIGHTS"         envDefault:"creativity_evaluation:0.6,improvement_suggestions:0.3,final_bidding_decision:0.8,creative_enhancement_analysis:0.4"`
	HybridCostWeight    decimal.Decimal `env:"HYBRID_COST_WEIGHT"   envDefault:"0.3"`

	PhaseDurations string        `env:"PHASE_DURATIONS" envDefault:"warmup:60,discussion:180,bidding:240,prediction:120,result:120"`
	SessionGrace   time.Duration `env:"SESSION_GRACE"   envDefault:"30m"`
	AttachTimeout  time.Duration `env:"ATTACH_TIMEOUT"  envDefault:"2m"`
	MaxViewers     int           `env:"MAX_VIEWERS"     envDefault:"500"`

	JWTSecret string `env:"JWT_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "bidding HTTP listen address")
	fs.StringVar(&cfg.ArchivePath, "archive-path", cfg.ArchivePath, "sqlite archive path (empty disables archiving)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the bidding service and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBidding, func(ctx context.Context) error {
		svc, err := build(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init bidding: %w", err)
		}
		defer svc.close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return svc.runtime.Run(gctx)
		})
		g.Go(func() error {
			return server.Run(gctx, server.Config{
				HTTPAddr:  cfg.HTTPAddr,
				JWTSecret: cfg.JWTSecret,
			}, svc.runtime)
		})
		return g.Wait()
	})
}

type service struct {
	runtime *session.Runtime
	store   *sqlite.Store
}

func (s *service) close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("bidding: close archive: %v", err)
		}
	}
}

func build(ctx context.Context, cfg Config) (*service, error) {
	loc := locale.Parse(cfg.Locale)
	roster := persona.Default()

	durations, err := session.ParseDurations(cfg.PhaseDurations)
	if err != nil {
		return nil, err
	}
	weights, err := dialogue.ParseWeights(cfg.CostWeights)
	if err != nil {
		return nil, err
	}

	tracker, err := budget.NewTracker(budget.Config{
		DailyBudget:       cfg.DailyBudget,
		FallbackThreshold: cfg.FallbackThreshold,
		Cooldown:          cfg.ParticipantCooldown,
	})
	if err != nil {
		return nil, fmt.Errorf("budget tracker: %w", err)
	}

	registrations, err := providerRegistrations(cfg)
	if err != nil {
		return nil, err
	}
	if len(registrations) == 0 {
		log.Printf("bidding: no model providers configured, dialogue is scripted only")
	}
	dispatcher, err := provider.NewDispatcher(provider.Config{
		Providers: registrations,
		Timeout:   cfg.ProviderTimeout,
		Recovery:  cfg.ProviderRecovery,
		Locale:    loc,
	})
	if err != nil {
		return nil, fmt.Errorf("provider dispatcher: %w", err)
	}
	for _, st := range dispatcher.Statuses() {
		log.Printf("bidding: provider registered id=%s rate_limit=%d", st.Provider, st.RateLimit)
	}

	rnd, err := random.New()
	if err != nil {
		return nil, err
	}
	library, err := script.New(script.Config{
		Templates: script.DefaultTemplates(),
		Roster:    roster,
		Random:    rnd,
		Locale:    loc,
	})
	if err != nil {
		return nil, fmt.Errorf("template library: %w", err)
	}

	engine, err := dialogue.NewEngine(dialogue.Config{
		Tracker:          tracker,
		Dispatcher:       dispatcher,
		Library:          library,
		Roster:           roster,
		Weights:          weights,
		HybridWeight:     cfg.HybridCostWeight,
		SessionCallLimit: cfg.SessionCallLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue engine: %w", err)
	}

	svc := &service{}
	var archiver *session.Archiver
	if path := strings.TrimSpace(cfg.ArchivePath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		svc.store = store
		archiver, err = session.NewArchiver(store, session.ArchiverOptions{})
		if err != nil {
			svc.close()
			return nil, err
		}
	}

	runtime, err := session.NewRuntime(session.RuntimeConfig{
		Generator: engine,
		Roster:    roster,
		Budget:    tracker,
		Archiver:  archiver,
		Forget:    library.Forget,
		Options: session.Options{
			Durations:  durations,
			MaxViewers: cfg.MaxViewers,
		},
		Grace:         cfg.SessionGrace,
		AttachTimeout: cfg.AttachTimeout,
	})
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("session runtime: %w", err)
	}
	svc.runtime = runtime
	return svc, nil
}

// providerRegistrations returns a registration for every provider with an
// API key.
func providerRegistrations(cfg Config) ([]provider.Registration, error) {
	var out []provider.Registration
	if key := strings.TrimSpace(cfg.DeepSeekAPIKey); key != "" {
		client, err := provider.NewOpenAICompatClient(provider.OpenAICompatConfig{
			BaseURL: cfg.DeepSeekBaseURL,
			APIKey:  key,
			Model:   cfg.DeepSeekModel,
		})
		if err != nil {
			return nil, fmt.Errorf("deepseek client: %w", err)
		}
		out = append(out, provider.Registration{ID: persona.DeepSeek, Client: client, RateLimit: cfg.DeepSeekRateLimit, Price: cfg.DeepSeekPrice})
	}
	if key := strings.TrimSpace(cfg.ZhipuAPIKey); key != "" {
		client, err := provider.NewOpenAICompatClient(provider.OpenAICompatConfig{
			BaseURL: cfg.ZhipuBaseURL,
			APIKey:  key,
			Model:   cfg.ZhipuModel,
		})
		if err != nil {
			return nil, fmt.Errorf("zhipu client: %w", err)
		}
		out = append(out, provider.Registration{ID: persona.Zhipu, Client: client, RateLimit: cfg.ZhipuRateLimit, Price: cfg.ZhipuPrice})
	}
	if key := strings.TrimSpace(cfg.DashScopeAPIKey); key != "" {
		client, err := provider.NewDashScopeClient(provider.DashScopeConfig{
			URL:    cfg.DashScopeURL,
			APIKey: key,
			Model:  cfg.DashScopeModel,
		})
		if err != nil {
			return nil, fmt.Errorf("dashscope client: %w", err)
		}
		out = append(out, provider.Registration{ID: persona.Qwen, Client: client, RateLimit: cfg.DashScopeRateLimit, Price: cfg.DashScopePrice})
	}
	for _, reg := range out {
		if reg.RateLimit <= 0 {
			return nil, errors.New("provider rate limits must be positive")
		}
	}
	return out, nil
}
