// Package provider dispatches chat completions to interchangeable model
// providers.
//
// The dispatcher owns per-provider rate limiting (sliding one-minute window,
// rejected locally without blocking) and an advisory health flag that flips
// off on failure and self-heals after a recovery window. Calls are never
// retried here; callers decide what to do with a failure.
package provider

import (
	"context"
	"time"

	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/shopspring/decimal"
)

// ID names a provider. It shares the persona package vocabulary so persona
// preferences route directly.
type ID = persona.ProviderID

// Request is a normalized chat-style request.
type Request struct {
	PersonaID    persona.ID
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Completion is the raw result of one provider client call.
type Completion struct {
	Content string
	Tokens  int
	Model   string
}

// Client performs one outbound completion. Implementations should honor ctx
// cancellation and return *StatusError for non-success HTTP statuses.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Completion, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// Response is a normalized provider answer. Fallback responses are
// synthesized locally, cost nothing and carry the failure in Err.
type Response struct {
	Provider  ID
	PersonaID persona.ID
	Model     string
	Content   string
	Tokens    int
	Cost      decimal.Decimal
	Latency   time.Duration
	Fallback  bool
	Err       error
}

// Call is one element of a CallMany batch.
type Call struct {
	Provider ID
	Request  Request
}
