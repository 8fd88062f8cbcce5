package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Archive persists finished-session snapshots for the report pipeline.
type Archive interface {
	PutSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, submissionID string) (Snapshot, error)
}

// ArchiverOptions tunes archive writes.
type ArchiverOptions struct {
	MaxTries        uint
	InitialInterval time.Duration
	Timeout         time.Duration
}

// Archiver writes snapshots in the background, retrying transient store
// failures with exponential backoff.
type Archiver struct {
	store   Archive
	opts    ArchiverOptions
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewArchiver wraps store.
func NewArchiver(store Archive, opts ArchiverOptions) (*Archiver, error) {
	if store == nil {
		return nil, errors.New("archive store is required")
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 5
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Archiver{store: store, opts: opts}, nil
}

// Save writes snap, retrying until it succeeds, the tries run out or ctx
// ends.
func (a *Archiver) Save(ctx context.Context, snap Snapshot) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.opts.InitialInterval
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, a.store.PutSnapshot(ctx, snap)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(a.opts.MaxTries))
	if err != nil {
		return fmt.Errorf("archive session %s after %d attempts: %w", snap.SessionID, attempts, err)
	}
	return nil
}

// SaveAsync saves snap in the background. It reports false, and saves
// nothing, once the archiver is closed.
func (a *Archiver) SaveAsync(snap Snapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		log.Printf("bidding: archive skipped, archiver closed session=%s", snap.SessionID)
		return false
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
		defer cancel()
		if err := a.Save(ctx, snap); err != nil {
			log.Printf("bidding: archive failed session=%s err=%v", snap.SessionID, err)
			return
		}
		log.Printf("bidding: archived session=%s submission=%s messages=%d", snap.SessionID, snap.SubmissionID, len(snap.Messages))
	}()
	return true
}

// Get reads the archived snapshot of a submission.
func (a *Archiver) Get(ctx context.Context, submissionID string) (Snapshot, error) {
	return a.store.GetSnapshot(ctx, submissionID)
}

// Close stops accepting saves and blocks until background saves finish.
func (a *Archiver) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.pending.Wait()
}
