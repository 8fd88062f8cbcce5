// Package budget tracks process-wide model-call spend.
//
// The tracker keeps a calendar-day running total, per-participant cooldowns
// and per-participant call counters. Amounts are abstract cost weights held
// as decimals. Reserve/Commit makes "check budget, then record spend" a
// single atomic step across concurrent sessions.
package budget

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrOverBudget means today's spend reached the fallback threshold.
	ErrOverBudget = errors.New("daily budget threshold reached")
	// ErrCoolingDown means the participant called a model too recently.
	ErrCoolingDown = errors.New("participant is cooling down")
)

// Config tunes the tracker.
type Config struct {
	// DailyBudget is the total cost weight allowed per calendar day.
	DailyBudget decimal.Decimal
	// FallbackThreshold is the fraction of DailyBudget at which real calls stop.
	FallbackThreshold decimal.Decimal
	// Cooldown is the minimum spacing between recorded calls of one participant.
	Cooldown time.Duration
	// Location defines the calendar day boundary. Defaults to UTC.
	Location *time.Location
	// Now overrides the clock.
	Now func() time.Time
}

// DefaultConfig returns the stock limits: 100 units per day, fallback at 90%,
// five minute cooldown.
func DefaultConfig() Config {
	return Config{
		DailyBudget:       decimal.NewFromInt(100),
		FallbackThreshold: decimal.RequireFromString("0.9"),
		Cooldown:          5 * time.Minute,
	}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	limit     decimal.Decimal
	cooldown  time.Duration
	location  *time.Location
	now       func() time.Time
	day       string
	spent     decimal.Decimal
	reserved  decimal.Decimal
	cooldowns map[string]time.Time
	calls     map[string]int
}

// NewTracker validates cfg and returns an empty tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if !cfg.DailyBudget.IsPositive() {
		return nil, fmt.Errorf("daily budget must be positive, got %s", cfg.DailyBudget)
	}
	if !cfg.FallbackThreshold.IsPositive() || cfg.FallbackThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fallback threshold must be in (0, 1], got %s", cfg.FallbackThreshold)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown must not be negative, got %s", cfg.Cooldown)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Tracker{
		limit:     cfg.DailyBudget.Mul(cfg.FallbackThreshold),
		cooldown:  cfg.Cooldown,
		location:  cfg.Location,
		now:       cfg.Now,
		cooldowns: make(map[string]time.Time),
		calls:     make(map[string]int),
	}
	t.day = t.dayKey(t.now())
	return t, nil
}

// RecordCall adds cost to today's total, increments the participant's call
// counter and starts its cooldown.
func (t *Tracker) RecordCall(participantID string, cost decimal.Decimal) {
	participantID = strings.TrimSpace(participantID)
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.rollover(now)
	t.record(participantID, cost, now)
}

// IsOverBudget reports whether today's total reached the fallback threshold.
func (t *Tracker) IsOverBudget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())
	return t.spent.GreaterThanOrEqual(t.limit)
}

// IsInCooldown reports whether participantID is still cooling down.
func (t *Tracker) IsInCooldown(participantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Before(t.cooldowns[strings.TrimSpace(participantID)])
}

// CallCount returns today's recorded calls for participantID.
func (t *Tracker) CallCount(participantID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())
	return t.calls[strings.TrimSpace(participantID)]
}

// Reserve atomically checks the budget (including outstanding reservations)
// and the participant cooldown, then holds cost until the reservation is
// committed or released. While held, the participant counts as cooling down.
func (t *Tracker) Reserve(participantID string, cost decimal.Decimal) (*Reservation, error) {
	participantID = strings.TrimSpace(participantID)
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rollover(now)
	if t.spent.Add(t.reserved).GreaterThanOrEqual(t.limit) {
		return nil, ErrOverBudget
	}
	previous, cooling := t.cooldowns[participantID]
	if now.Before(previous) {
		return nil, ErrCoolingDown
	}

	t.reserved = t.reserved.Add(cost)
	t.cooldowns[participantID] = now.Add(t.cooldown)
	return &Reservation{
		tracker:         t,
		participantID:   participantID,
		cost:            cost,
		previous:        previous,
		hadPrevious:     cooling,
		provisionalTill: now.Add(t.cooldown),
	}, nil
}

// Usage is a point-in-time view of the tracker.
type Usage struct {
	Day      string
	Spent    decimal.Decimal
	Reserved decimal.Decimal
	Limit    decimal.Decimal
	Calls    map[string]int
}

// Usage returns a copy of the current totals.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())
	calls := make(map[string]int, len(t.calls))
	for k, v := range t.calls {
		calls[k] = v
	}
	return Usage{Day: t.day, Spent: t.spent, Reserved: t.reserved, Limit: t.limit, Calls: calls}
}

func (t *Tracker) record(participantID string, cost decimal.Decimal, now time.Time) {
	t.spent = t.spent.Add(cost)
	t.calls[participantID]++
	t.cooldowns[participantID] = now.Add(t.cooldown)
}

func (t *Tracker) rollover(now time.Time) {
	day := t.dayKey(now)
	if day == t.day {
		return
	}
	t.day = day
	t.spent = decimal.Zero
	t.calls = make(map[string]int)
}

func (t *Tracker) dayKey(now time.Time) string {
	return now.In(t.location).Format(time.DateOnly)
}

// Reservation is budget held between the check and the recorded spend.
// Exactly one of Commit or Release takes effect; later calls are no-ops.
type Reservation struct {
	tracker         *Tracker
	participantID   string
	cost            decimal.Decimal
	previous        time.Time
	hadPrevious     bool
	provisionalTill time.Time
	done            bool
}

// Cost returns the held amount.
func (r *Reservation) Cost() decimal.Decimal {
	return r.cost
}

// Commit records the held amount as a call.
func (r *Reservation) Commit() {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	now := t.now()
	t.rollover(now)
	t.reserved = t.reserved.Sub(r.cost)
	t.record(r.participantID, r.cost, now)
}

// Release returns the held amount and restores the participant's previous
// cooldown when nothing else changed it.
func (r *Reservation) Release() {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	t.reserved = t.reserved.Sub(r.cost)
	if current := t.cooldowns[r.participantID]; current.Equal(r.provisionalTill) {
		if r.hadPrevious {
			t.cooldowns[r.participantID] = r.previous
		} else {
			delete(t.cooldowns, r.participantID)
		}
	}
}
