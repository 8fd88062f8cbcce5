package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/bidstage/internal/platform/errors"
	"github.com/louisbranch/bidstage/internal/random"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
)

const (
	defaultGrace         = 30 * time.Minute
	defaultAttachTimeout = 2 * time.Minute
	defaultReapInterval  = 30 * time.Second
)

// RuntimeConfig configures a Runtime.
type RuntimeConfig struct {
	Generator Generator
	Roster    *persona.Registry
	Budget    BudgetProbe
	// Archiver is optional; without it finished sessions are not persisted.
	Archiver *Archiver
	// Forget is called with the session id when a session is reaped.
	Forget        func(sessionID string)
	Options       Options
	Grace         time.Duration
	AttachTimeout time.Duration
	ReapInterval  time.Duration
	NewRandom     func() (random.Source, error)
	Now           func() time.Time
}

// Runtime owns the session table.
type Runtime struct {
	cfg RuntimeConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRuntime validates cfg.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Roster == nil {
		return nil, errors.New("persona roster is required")
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = defaultAttachTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaultReapInterval
	}
	if cfg.NewRandom == nil {
		cfg.NewRandom = func() (random.Source, error) { return random.New() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Options.Now == nil {
		cfg.Options.Now = cfg.Now
	}
	return &Runtime{cfg: cfg, sessions: make(map[string]*Session)}, nil
}

// Session returns the session for submissionID, creating it on first
// reference.
func (r *Runtime) Session(submissionID string) (*Session, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, apperrors.New(apperrors.CodeSessionIDRequired, "submission id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[submissionID]; ok {
		return s, nil
	}

	rnd, err := r.cfg.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("seed session random: %w", err)
	}
	s, err := New(Config{
		SubmissionID: submissionID,
		Generator:    r.cfg.Generator,
		Roster:       r.cfg.Roster,
		Budget:       r.cfg.Budget,
		Random:       rnd,
		Options:      r.cfg.Options,
		OnEnd:        r.sessionEnded,
	})
	if err != nil {
		return nil, err
	}
	r.sessions[submissionID] = s
	log.Printf("bidding: session created session=%s submission=%s", s.ID(), submissionID)
	return s, nil
}

// Lookup returns a live session without creating one.
func (r *Runtime) Lookup(submissionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[strings.TrimSpace(submissionID)]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Runtime) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Delete cancels and removes a session immediately.
func (r *Runtime) Delete(submissionID string) error {
	submissionID = strings.TrimSpace(submissionID)
	r.mu.Lock()
	s, ok := r.sessions[submissionID]
	if ok {
		delete(r.sessions, submissionID)
	}
	r.mu.Unlock()
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeSessionNotFound, "session not found", map[string]string{
			"submission_id": submissionID,
		})
	}
	r.discard(s, "deleted")
	return nil
}

// Snapshot returns the live snapshot of a submission, or its archived copy
// once the session is gone.
func (r *Runtime) Snapshot(ctx context.Context, submissionID string) (Snapshot, error) {
	if s, ok := r.Lookup(submissionID); ok {
		return s.Snapshot(), nil
	}
	if r.cfg.Archiver != nil {
		snap, err := r.cfg.Archiver.Get(ctx, strings.TrimSpace(submissionID))
		if err == nil {
			return snap, nil
		}
		if apperrors.CodeOf(err) != apperrors.CodeArchiveNotFound {
			return Snapshot{}, fmt.Errorf("read archived snapshot: %w", err)
		}
	}
	return Snapshot{}, apperrors.WithMetadata(apperrors.CodeSessionNotFound, "session not found", map[string]string{
		"submission_id": strings.TrimSpace(submissionID),
	})
}

// Reap removes sessions whose grace period elapsed after ending, and
// sessions left without viewers for the attach timeout before they ever
// started. It returns the reaped submission ids.
func (r *Runtime) Reap() []string {
	now := r.cfg.Now()
	var reaped []*Session
	r.mu.Lock()
	for submissionID, s := range r.sessions {
		if r.expired(s, now) {
			delete(r.sessions, submissionID)
			reaped = append(reaped, s)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(reaped))
	for _, s := range reaped {
		r.discard(s, "reaped")
		ids = append(ids, s.SubmissionID())
	}
	return ids
}

func (r *Runtime) expired(s *Session, now time.Time) bool {
	if ended, endedAt := s.Ended(); ended {
		return !now.Before(endedAt.Add(r.cfg.Grace))
	}
	since, idle := s.IdleSince()
	if !idle {
		return false
	}
	if s.Started() && s.EverAttached() {
		return false
	}
	return !now.Before(since.Add(r.cfg.AttachTimeout))
}

// Run reaps on an interval until ctx ends, then closes every session and
// the archiver.
func (r *Runtime) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.Reap()
		}
	}
}

// Close cancels every live session, then stops the archiver after its
// pending writes finish.
func (r *Runtime) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for submissionID, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, submissionID)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		r.discard(s, "closed")
	}
	if r.cfg.Archiver != nil {
		r.cfg.Archiver.Close()
	}
}

func (r *Runtime) discard(s *Session, reason string) {
	s.Close()
	if r.cfg.Forget != nil {
		r.cfg.Forget(s.ID())
	}
	log.Printf("bidding: session %s session=%s submission=%s", reason, s.ID(), s.SubmissionID())
}

func (r *Runtime) sessionEnded(snap Snapshot) {
	if r.cfg.Archiver == nil {
		return
	}
	r.cfg.Archiver.SaveAsync(snap)
}
