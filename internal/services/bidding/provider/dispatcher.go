package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/bidstage/internal/platform/locale"
	"github.com/louisbranch/bidstage/internal/platform/timeouts"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/louisbranch/bidstage/internal/services/bidding/provider"

// DefaultMinContentRunes is the shortest answer accepted as valid.
const DefaultMinContentRunes = 4

// Registration describes one provider known to the dispatcher.
type Registration struct {
	ID        ID
	Client    Client
	RateLimit int
	Price     decimal.Decimal
}

// Config tunes a Dispatcher.
type Config struct {
	Providers       []Registration
	Timeout         time.Duration
	Recovery        time.Duration
	MinContentRunes int
	Locale          locale.Locale
	Now             func() time.Time
}

type registered struct {
	client  Client
	limiter *slidingWindow
	price   decimal.Decimal
}

// Dispatcher is safe for concurrent use by every session.
type Dispatcher struct {
	providers map[ID]registered
	order     []ID
	health    *healthRegistry
	timeout   time.Duration
	minRunes  int
	locale    locale.Locale
	now       func() time.Time
	tracer    trace.Tracer
	calls     metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewDispatcher validates cfg and builds a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.ProviderCall
	}
	if cfg.Recovery <= 0 {
		cfg.Recovery = timeouts.ProviderRecovery
	}
	if cfg.MinContentRunes <= 0 {
		cfg.MinContentRunes = DefaultMinContentRunes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Dispatcher{
		providers: make(map[ID]registered, len(cfg.Providers)),
		health:    newHealthRegistry(cfg.Recovery),
		timeout:   cfg.Timeout,
		minRunes:  cfg.MinContentRunes,
		locale:    cfg.Locale,
		now:       cfg.Now,
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, reg := range cfg.Providers {
		id := ID(strings.TrimSpace(string(reg.ID)))
		if id == "" {
			return nil, errors.New("provider id is required")
		}
		if reg.Client == nil {
			return nil, fmt.Errorf("provider %s: client is required", id)
		}
		if _, dup := d.providers[id]; dup {
			return nil, fmt.Errorf("provider %s registered twice", id)
		}
		d.providers[id] = registered{
			client:  reg.Client,
			limiter: newSlidingWindow(reg.RateLimit),
			price:   reg.Price,
		}
		d.order = append(d.order, id)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	d.calls, err = meter.Int64Counter("bidstage.provider.calls",
		metric.WithDescription("Outbound provider calls by outcome."))
	if err != nil {
		return nil, fmt.Errorf("provider call counter: %w", err)
	}
	d.fallbacks, err = meter.Int64Counter("bidstage.provider.fallbacks",
		metric.WithDescription("Responses replaced by a local fallback."))
	if err != nil {
		return nil, fmt.Errorf("provider fallback counter: %w", err)
	}
	return d, nil
}

// Call performs one outbound completion against provider.
//
// Rate-limit and health rejections fail fast without touching health, and so
// does a call abandoned because ctx was canceled. Any other failure, including
// empty or too-short content, marks the provider unusable for the recovery
// window. Errors are always *ProviderError.
func (d *Dispatcher) Call(ctx context.Context, provider ID, req Request) (Response, error) {
	reg, ok := d.providers[provider]
	if !ok {
		return Response{}, d.reject(ctx, provider, KindUnavailable, errors.New("provider not configured"))
	}
	now := d.now()
	if !d.health.usable(provider, now) {
		return Response{}, d.reject(ctx, provider, KindUnavailable, errors.New("provider is recovering"))
	}
	if !reg.limiter.allow(now) {
		return Response{}, d.reject(ctx, provider, KindRateLimited, errors.New("rate limit window is full"))
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	callCtx, span := d.tracer.Start(callCtx, "provider.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bidstage.provider", string(provider)),
			attribute.String("bidstage.persona", string(req.PersonaID)),
		),
	)
	defer span.End()

	started := time.Now()
	completion, err := reg.client.Complete(callCtx, req)
	latency := time.Since(started)
	if err == nil {
		err = d.validate(completion)
	}
	if err != nil {
		providerErr := classify(provider, ctx, callCtx, err)
		if providerErr.marksUnhealthy() {
			until := d.health.markFailed(provider, d.now())
			log.Printf("bidding: provider %s failed kind=%s recover_at=%s err=%v", provider, providerErr.Kind, until.UTC().Format(time.RFC3339), err)
		} else {
			log.Printf("bidding: provider %s call abandoned kind=%s err=%v", provider, providerErr.Kind, err)
		}
		span.RecordError(providerErr)
		span.SetStatus(codes.Error, string(providerErr.Kind))
		d.count(ctx, provider, string(providerErr.Kind))
		return Response{}, providerErr
	}

	span.SetAttributes(
		attribute.String("bidstage.model", completion.Model),
		attribute.Int("bidstage.tokens", completion.Tokens),
	)
	d.count(ctx, provider, "ok")
	return Response{
		Provider:  provider,
		PersonaID: req.PersonaID,
		Model:     completion.Model,
		Content:   strings.TrimSpace(completion.Content),
		Tokens:    completion.Tokens,
		Cost:      reg.price,
		Latency:   latency,
	}, nil
}

// CallMany fans calls out concurrently. A failed call is replaced by a
// fallback response with zero cost; successful siblings are returned as-is.
// The result has one entry per call, in call order.
func (d *Dispatcher) CallMany(ctx context.Context, calls []Call) []Response {
	responses := make([]Response, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			resp, err := d.Call(ctx, call.Provider, call.Request)
			if err != nil {
				resp = d.Fallback(call.Provider, call.Request.PersonaID, err)
				d.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("bidstage.provider", string(call.Provider))))
			}
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

// Fallback synthesizes the neutral stand-in for a failed call.
func (d *Dispatcher) Fallback(provider ID, personaID persona.ID, cause error) Response {
	return Response{
		Provider:  provider,
		PersonaID: personaID,
		Content:   fallbackContent(d.locale),
		Cost:      decimal.Zero,
		Fallback:  true,
		Err:       cause,
	}
}

// Available reports whether a call to provider would currently pass the
// health and rate-limit checks.
func (d *Dispatcher) Available(provider ID) bool {
	reg, ok := d.providers[provider]
	if !ok {
		return false
	}
	now := d.now()
	return d.health.usable(provider, now) && reg.limiter.hasRoom(now)
}

// Route returns the first available provider in preference order.
func (d *Dispatcher) Route(preferences []ID) (ID, bool) {
	for _, id := range preferences {
		if d.Available(id) {
			return id, true
		}
	}
	return "", false
}

// Status is the observable state of one provider.
type Status struct {
	Provider   ID
	Healthy    bool
	RecoversAt time.Time
	UsedInRate int
	RateLimit  int
}

// Statuses returns every provider's state in registration order.
func (d *Dispatcher) Statuses() []Status {
	now := d.now()
	out := make([]Status, 0, len(d.order))
	for _, id := range d.order {
		reg := d.providers[id]
		st := Status{
			Provider:   id,
			Healthy:    d.health.usable(id, now),
			UsedInRate: reg.limiter.used(now),
			RateLimit:  reg.limiter.limit,
		}
		if until, ok := d.health.recoversAt(id); ok {
			st.RecoversAt = until
		}
		out = append(out, st)
	}
	return out
}

func (d *Dispatcher) validate(c Completion) error {
	if utf8.RuneCountInString(strings.TrimSpace(c.Content)) < d.minRunes {
		return fmt.Errorf("%w: content has fewer than %d characters", ErrInvalidResponse, d.minRunes)
	}
	return nil
}

func (d *Dispatcher) reject(ctx context.Context, provider ID, kind Kind, cause error) error {
	d.count(ctx, provider, string(kind))
	return &ProviderError{Provider: provider, Kind: kind, Cause: cause}
}

func (d *Dispatcher) count(ctx context.Context, provider ID, outcome string) {
	d.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bidstage.provider", string(provider)),
		attribute.String("bidstage.outcome", outcome),
	))
}

// classify maps a client error to a ProviderError. parent is the caller's
// context; callCtx adds the dispatcher timeout on top of it.
func classify(provider ID, parent, callCtx context.Context, err error) *ProviderError {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}
	out := &ProviderError{Provider: provider, Kind: KindTransport, Cause: err}
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrInvalidResponse):
		out.Kind = KindInvalidResponse
	case parent.Err() != nil:
		out.Kind = KindCanceled
	case errors.Is(err, context.Canceled) && !errors.Is(callCtx.Err(), context.DeadlineExceeded):
		out.Kind = KindCanceled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.As(err, &statusErr):
		out.Kind = KindStatus
		out.Status = statusErr.Code
	}
	return out
}

func fallbackContent(l locale.Locale) string {
	if l == locale.English {
		return "Sorry, I'm having some technical trouble. I'll come back to this idea shortly..."
	}
	return "抱歉，我现在有些技术问题，稍后再来分析这个创意..."
}
