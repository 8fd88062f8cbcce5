// Package session runs bidding sessions.
//
// A session is a phase state machine driven by a one-second tick. Ticks may
// enqueue spontaneous dialogue; a single worker per session generates it
// without holding the session lock and applies the result under the lock.
// Every mutation publishes its events to subscribers while the lock is held,
// so each subscriber observes the same ordered stream. Subscribers that fall
// behind are dropped rather than stalling the session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/bidstage/internal/platform/errors"
	"github.com/louisbranch/bidstage/internal/platform/id"
	"github.com/louisbranch/bidstage/internal/random"
	"github.com/louisbranch/bidstage/internal/services/bidding/dialogue"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
	"github.com/louisbranch/bidstage/internal/services/bidding/stage"
	"github.com/shopspring/decimal"
)

const (
	defaultTickInterval     = time.Second
	defaultOpeningDelay     = 2 * time.Second
	defaultMaxViewers       = 500
	defaultRecentMessages   = 10
	defaultQueueSize        = 16
	defaultSubscriberBuffer = 64
	defaultMaxIdeaRunes     = 4000

	autoBidChance    = 0.3
	linesPerRound    = 5
	promptLineWindow = 5
	supplementPrefix = "\n\n用户补充："
)

// Generator produces utterances for a dialogue request.
type Generator interface {
	Generate(ctx context.Context, gctx dialogue.Context) dialogue.Result
}

// BudgetProbe reports whether the process-wide budget threshold is reached.
type BudgetProbe interface {
	IsOverBudget() bool
}

// Options tunes session timing and limits. Zero values take defaults.
type Options struct {
	Durations        Durations
	Probabilities    Probabilities
	TickInterval     time.Duration
	ManualTicks      bool
	OpeningDelay     time.Duration
	Schedule         func(delay time.Duration, fn func())
	MaxViewers       int
	RecentMessages   int
	QueueSize        int
	SubscriberBuffer int
	MaxIdeaRunes     int
	Now              func() time.Time
	NewID            id.Generator
}

func (o Options) withDefaults() Options {
	if o.Durations == nil {
		o.Durations = DefaultDurations()
	}
	if o.Probabilities == nil {
		o.Probabilities = DefaultProbabilities()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.OpeningDelay <= 0 {
		o.OpeningDelay = defaultOpeningDelay
	}
	if o.Schedule == nil {
		o.Schedule = func(delay time.Duration, fn func()) { time.AfterFunc(delay, fn) }
	}
	if o.MaxViewers <= 0 {
		o.MaxViewers = defaultMaxViewers
	}
	if o.RecentMessages <= 0 {
		o.RecentMessages = defaultRecentMessages
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = defaultSubscriberBuffer
	}
	if o.MaxIdeaRunes <= 0 {
		o.MaxIdeaRunes = defaultMaxIdeaRunes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() (string, error) { return id.NewPrefixed("msg") }
	}
	return o
}

// Config builds a Session.
type Config struct {
	SessionID    string
	SubmissionID string
	Generator    Generator
	Roster       *persona.Registry
	Budget       BudgetProbe
	Random       random.Source
	Options      Options
	// OnEnd receives the final snapshot once the terminal phase completes. It
	// runs under the session lock and must not block or call back into the
	// session.
	OnEnd func(Snapshot)
}

type task struct {
	trigger     stage.Trigger
	spontaneous bool
	speaker     persona.ID
}

// StartInput seeds a session.
type StartInput struct {
	Idea            string
	CreativityScore int
}

// Session is one running bidding simulation.
type Session struct {
	id           string
	submissionID string
	generator    Generator
	roster       *persona.Registry
	budget       BudgetProbe
	rnd          random.Source
	opts         Options
	onEnd        func(Snapshot)

	ctx      context.Context
	cancel   context.CancelFunc
	queue    chan task
	stopped  chan struct{}
	stopOnce sync.Once

	mu              sync.Mutex
	phase           stage.Phase
	phaseStarted    time.Time
	remaining       int
	started         bool
	ended           bool
	closed          bool
	idea            string
	creativityScore int
	ledger          Ledger
	log             []Message
	units           decimal.Decimal
	providerCost    decimal.Decimal
	realCalls       int
	subscribers     map[*Subscription]struct{}
	everAttached    bool
	createdAt       time.Time
	idleSince       time.Time
	endedAt         time.Time
	winner          persona.ID
}

// New validates cfg and starts the session worker. The timer starts with
// Start.
func New(cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.SubmissionID) == "" {
		return nil, apperrors.New(apperrors.CodeSessionIDRequired, "submission id is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Roster == nil {
		return nil, errors.New("persona roster is required")
	}
	if cfg.Random == nil {
		return nil, errors.New("random source is required")
	}
	opts := cfg.Options.withDefaults()
	sessionID := strings.TrimSpace(cfg.SessionID)
	if sessionID == "" {
		generated, err := id.NewPrefixed("ses")
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sessionID = generated
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           sessionID,
		submissionID: strings.TrimSpace(cfg.SubmissionID),
		generator:    cfg.Generator,
		roster:       cfg.Roster,
		budget:       cfg.Budget,
		rnd:          cfg.Random,
		opts:         opts,
		onEnd:        cfg.OnEnd,
		ctx:          ctx,
		cancel:       cancel,
		queue:        make(chan task, opts.QueueSize),
		stopped:      make(chan struct{}),
		phase:        stage.Warmup,
		remaining:    opts.Durations.Of(stage.Warmup),
		ledger:       NewLedger(),
		units:        decimal.Zero,
		providerCost: decimal.Zero,
		subscribers:  make(map[*Subscription]struct{}),
	}
	s.createdAt = opts.Now()
	s.idleSince = s.createdAt
	go s.work()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// SubmissionID returns the submission the session belongs to.
func (s *Session) SubmissionID() string { return s.submissionID }

// Phase returns the current phase and its remaining seconds.
func (s *Session) Phase() (stage.Phase, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.remaining
}

// Started reports whether the timer has started.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Ended reports whether the terminal phase completed and when.
func (s *Session) Ended() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended, s.endedAt
}

// Viewers returns the number of attached subscribers.
func (s *Session) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// EverAttached reports whether any subscriber ever attached.
func (s *Session) EverAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.everAttached
}

// IdleSince returns when the last subscriber left, or the creation time when
// nobody attached yet. idle is false while subscribers are attached.
func (s *Session) IdleSince() (since time.Time, idle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleSince, len(s.subscribers) == 0
}

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Ledger returns a copy of the bid ledger.
func (s *Session) Ledger() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Ledger{bids: s.ledger.Bids(), highest: s.ledger.Highest(), leader: s.ledger.Leader()}
}

// Log returns a copy of the message log.
func (s *Session) Log() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.log...)
}

// Start seeds the submission content and starts the timer. Repeated calls
// after the first are no-ops.
func (s *Session) Start(input StartInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	if s.started {
		return nil
	}
	idea := strings.TrimSpace(input.Idea)
	if utf8.RuneCountInString(idea) > s.opts.MaxIdeaRunes {
		return apperrors.New(apperrors.CodeSessionContentLength, "submission content is too long")
	}
	s.idea = idea
	s.creativityScore = clampScore(input.CreativityScore)
	s.started = true
	s.beginPhaseLocked(stage.Warmup)
	log.Printf("bidding: session started session=%s submission=%s", s.id, s.submissionID)
	if !s.opts.ManualTicks {
		go s.runTimer()
	}
	return nil
}

// Tick advances the timer by one second. It is driven by the session timer
// and exposed for deterministic callers.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.ended || s.closed {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	s.publishLocked(Event{Type: EventTimerUpdate, Payload: TimerPayload{Phase: s.phase.String(), RemainingSeconds: s.remaining}})

	if s.remaining == 0 {
		if next, ok := s.phase.Next(); ok {
			s.beginPhaseLocked(next)
			return
		}
		s.endLocked()
		return
	}
	if s.rnd.Float64() < s.opts.Probabilities[s.phase] {
		speaker := s.roster.At(s.rnd.IntN(s.roster.Len())).ID
		s.enqueue(task{
			trigger:     spontaneousTrigger(s.phase, s.remaining, s.rnd.IntN),
			spontaneous: true,
			speaker:     speaker,
		})
	}
}

// Attach registers a subscriber. Its first event is the session.init
// snapshot.
func (s *Session) Attach(viewerID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.New(apperrors.CodeSessionNotFound, "session was deleted")
	}
	if len(s.subscribers) >= s.opts.MaxViewers {
		return nil, apperrors.WithMetadata(apperrors.CodeSessionViewerLimit, "session is full", map[string]string{
			"max_viewers": fmt.Sprint(s.opts.MaxViewers),
		})
	}
	sub := &Subscription{
		ViewerID: strings.TrimSpace(viewerID),
		events:   make(chan Event, s.opts.SubscriberBuffer),
	}
	sub.events <- Event{Type: EventSessionInit, Payload: s.initLocked()}
	s.subscribers[sub] = struct{}{}
	s.everAttached = true
	return sub, nil
}

// Detach removes sub and closes its stream. The timer keeps running without
// subscribers.
func (s *Session) Detach(sub *Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub]; !ok {
		return
	}
	delete(s.subscribers, sub)
	close(sub.events)
	if len(s.subscribers) == 0 {
		s.idleSince = s.opts.Now()
	}
}

// Init returns the snapshot a new subscriber would receive.
func (s *Session) Init() InitPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

// Supplement appends viewer text to the submission content and triggers one
// extra enhancement round.
func (s *Session) Supplement(viewerID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return apperrors.New(apperrors.CodeCommandInvalidPayload, "supplement content is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	if s.ended {
		return apperrors.New(apperrors.CodeSessionEnded, "session has ended")
	}
	if utf8.RuneCountInString(s.idea)+utf8.RuneCountInString(content) > s.opts.MaxIdeaRunes {
		return apperrors.New(apperrors.CodeSessionContentLength, "submission content is too long")
	}
	s.idea += supplementPrefix + content
	s.publishLocked(Event{Type: EventSupplementReceived, Payload: SupplementPayload{
		ViewerID:   strings.TrimSpace(viewerID),
		Content:    content,
		ReceivedAt: s.opts.Now().UTC(),
	}})
	s.enqueue(task{trigger: stage.CreativeEnhancementAnalysis})
	return nil
}

// AnnotationKind is a lightweight viewer signal.
type AnnotationKind string

// Annotation kinds.
const (
	AnnotationReaction   AnnotationKind = "reaction"
	AnnotationSupport    AnnotationKind = "support"
	AnnotationPrediction AnnotationKind = "prediction"
)

func (k AnnotationKind) eventType() (string, bool) {
	switch k {
	case AnnotationReaction:
		return EventReactionReceived, true
	case AnnotationSupport:
		return EventSupportReceived, true
	case AnnotationPrediction:
		return EventPredictionReceived, true
	default:
		return "", false
	}
}

// Annotate broadcasts a viewer annotation as-is. Annotations never touch
// the ledger or the log.
func (s *Session) Annotate(kind AnnotationKind, viewerID string, data json.RawMessage) error {
	eventType, ok := kind.eventType()
	if !ok {
		return apperrors.New(apperrors.CodeCommandUnsupported, fmt.Sprintf("unsupported annotation %q", kind))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return err
	}
	s.publishLocked(Event{Type: eventType, Payload: AnnotationPayload{
		ViewerID:   strings.TrimSpace(viewerID),
		Data:       data,
		ReceivedAt: s.opts.Now().UTC(),
	}})
	return nil
}

// Snapshot returns the read-only report view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels the session: the timer and worker stop, in-flight
// generation is canceled and every subscriber stream is closed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for sub := range s.subscribers {
		delete(s.subscribers, sub)
		close(sub.events)
	}
	s.mu.Unlock()
	s.stop()
}

func (s *Session) activeLocked() error {
	if s.closed {
		return apperrors.New(apperrors.CodeSessionNotFound, "session was deleted")
	}
	return nil
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.cancel()
	})
}

func (s *Session) runTimer() {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopped:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Session) work() {
	for {
		select {
		case <-s.stopped:
			return
		case t := <-s.queue:
			s.process(t)
		}
	}
}

// enqueue never blocks and needs no lock. Requests beyond the queue size
// are dropped.
func (s *Session) enqueue(t task) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.queue <- t:
		return true
	default:
		log.Printf("bidding: dialogue queue full session=%s trigger=%s", s.id, t.trigger)
		return false
	}
}

func (s *Session) process(t task) {
	s.mu.Lock()
	if !s.started || s.ended || s.closed {
		s.mu.Unlock()
		return
	}
	gctx := s.dialogueContextLocked(t)
	s.mu.Unlock()

	res := s.generator.Generate(s.ctx, gctx)
	s.apply(res)
}

func (s *Session) dialogueContextLocked(t task) dialogue.Context {
	lines := recent(s.log, promptLineWindow)
	previous := make([]string, 0, len(lines))
	for _, msg := range lines {
		previous = append(previous, msg.PersonaName+": "+msg.Content)
	}
	return dialogue.Context{
		SessionID:       s.id,
		ParticipantID:   s.id,
		Phase:           s.phase,
		Trigger:         t.trigger,
		Round:           s.roundLocked(),
		IdeaContent:     s.idea,
		CreativityScore: s.creativityScore,
		HighestBid:      s.ledger.Highest(),
		CurrentBids:     s.ledger.Bids(),
		PreviousLines:   previous,
		Speaker:         t.speaker,
		RealCalls:       s.realCalls,
		Spontaneous:     t.spontaneous,
	}
}

func (s *Session) roundLocked() int {
	return len(s.log)/linesPerRound + 1
}

// apply appends generated utterances, applying bids only in the bidding
// phase as it stands when the result arrives.
func (s *Session) apply(res dialogue.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.closed {
		return
	}
	for _, u := range res.Utterances {
		content := strings.TrimSpace(u.Content)
		if content == "" {
			continue
		}
		msgID, err := s.opts.NewID()
		if err != nil {
			msgID = fmt.Sprintf("msg_%s_%d", s.id, len(s.log)+1)
		}
		msg := Message{
			ID:          msgID,
			SessionID:   s.id,
			PersonaID:   u.PersonaID,
			PersonaName: s.personaName(u.PersonaID),
			Phase:       s.phase.String(),
			Round:       s.roundLocked(),
			Content:     content,
			Emotion:     u.Emotion,
			Origin:      u.Origin,
			Provider:    string(u.Provider),
			Cost:        u.Cost.String(),
			Tokens:      u.Tokens,
			CreatedAt:   s.opts.Now().UTC(),
		}

		var bidEvent *BidPayload
		if s.phase == stage.Bidding {
			amount := u.Bid
			if amount == 0 && s.rnd.Float64() < autoBidChance {
				amount = s.autoBidLocked(u.PersonaID)
			}
			if amount > 0 {
				if previous, ok := s.ledger.Apply(u.PersonaID, amount); ok {
					msg.Bid = amount
					bidEvent = &BidPayload{
						PersonaID:   string(u.PersonaID),
						PersonaName: msg.PersonaName,
						Amount:      amount,
						Previous:    previous,
						HighestBid:  s.ledger.Highest(),
						Leader:      string(s.ledger.Leader()),
						MessageID:   msg.ID,
					}
				}
			}
		}
		s.log = append(s.log, msg)
		s.publishLocked(Event{Type: EventPersonaSpeech, Payload: msg})
		if bidEvent != nil {
			s.publishLocked(Event{Type: EventBidPlaced, Payload: *bidEvent})
		}
	}

	if res.RealCall {
		s.realCalls++
	}
	if res.Charged.IsZero() && res.ProviderCost.IsZero() {
		return
	}
	s.units = s.units.Add(res.Charged)
	s.providerCost = s.providerCost.Add(res.ProviderCost)
	s.publishLocked(Event{Type: EventCostUpdate, Payload: s.costLocked()})
}

// autoBidLocked raises the persona's own bid, starting from the opening
// amount when it has not bid yet.
func (s *Session) autoBidLocked(personaID persona.ID) int {
	base := s.ledger.Bid(personaID)
	if base == 0 {
		base = StartingBid
	}
	step := 0
	if p, err := s.roster.Get(personaID); err == nil {
		step = p.BidStep()
	}
	return base + 10 + s.rnd.IntN(30) + step
}

func (s *Session) personaName(personaID persona.ID) string {
	if p, err := s.roster.Get(personaID); err == nil {
		return p.Name
	}
	return string(personaID)
}

func (s *Session) beginPhaseLocked(phase stage.Phase) {
	now := s.opts.Now()
	s.phase = phase
	s.phaseStarted = now
	s.remaining = s.opts.Durations.Of(phase)
	s.publishLocked(Event{Type: EventStageStarted, Payload: StagePayload{
		Phase:           phase.String(),
		DurationSeconds: s.remaining,
		StartedAt:       now.UTC(),
	}})
	trigger := openingTrigger(phase)
	s.opts.Schedule(s.opts.OpeningDelay, func() {
		s.enqueue(task{trigger: trigger})
	})
}

func (s *Session) endLocked() {
	s.ended = true
	s.endedAt = s.opts.Now()
	s.winner = s.ledger.Leader()
	payload := EndedPayload{
		Winner:     string(s.winner),
		HighestBid: s.ledger.Highest(),
		Bids:       s.ledger.View().Bids,
		EndedAt:    s.endedAt.UTC(),
	}
	if s.winner != "" {
		payload.WinnerName = s.personaName(s.winner)
	}
	s.publishLocked(Event{Type: EventStageEnded, Payload: payload})
	log.Printf("bidding: session ended session=%s winner=%s highest=%d messages=%d", s.id, s.winner, s.ledger.Highest(), len(s.log))
	s.stop()
	if s.onEnd != nil {
		s.onEnd(s.snapshotLocked())
	}
}

func (s *Session) publishLocked(ev Event) {
	for sub := range s.subscribers {
		select {
		case sub.events <- ev:
		default:
			delete(s.subscribers, sub)
			close(sub.events)
			log.Printf("bidding: dropped slow subscriber session=%s viewer=%s", s.id, sub.ViewerID)
		}
	}
}

func (s *Session) costLocked() CostUpdatePayload {
	threshold := false
	if s.budget != nil {
		threshold = s.budget.IsOverBudget()
	}
	return CostUpdatePayload{
		TotalCost:        s.providerCost.String(),
		BudgetUnits:      s.units.String(),
		RealCalls:        s.realCalls,
		ThresholdReached: threshold,
	}
}

func (s *Session) initLocked() InitPayload {
	return InitPayload{
		SessionID:        s.id,
		SubmissionID:     s.submissionID,
		Phase:            s.phase.String(),
		RemainingSeconds: s.remaining,
		Round:            s.roundLocked(),
		Started:          s.started,
		Ended:            s.ended,
		Messages:         recent(s.log, s.opts.RecentMessages),
		Ledger:           s.ledger.View(),
		Cost:             s.costLocked(),
	}
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// Subscription is one subscriber's ordered event stream. The channel is
// closed on detach, on session deletion or when the subscriber falls behind.
type Subscription struct {
	ViewerID string
	events   chan Event
}

// Events returns the stream.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}
