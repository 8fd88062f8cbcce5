package session

import "time"

// Snapshot is the read-only report view of a session: metadata, ledger,
// the ordered log and the winner.
type Snapshot struct {
	SessionID      string            `json:"sessionId"`
	SubmissionID   string            `json:"submissionId"`
	Phase          string            `json:"phase"`
	PhaseStartedAt time.Time         `json:"phaseStartedAt"`
	Started        bool              `json:"started"`
	Ended          bool              `json:"ended"`
	Idea           string            `json:"idea"`
	CreatedAt      time.Time         `json:"createdAt"`
	EndedAt        time.Time         `json:"endedAt"`
	Ledger         LedgerView        `json:"ledger"`
	Winner         string            `json:"winner,omitempty"`
	Messages       []Message         `json:"messages"`
	Cost           CostUpdatePayload `json:"cost"`
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      s.id,
		SubmissionID:   s.submissionID,
		Phase:          s.phase.String(),
		PhaseStartedAt: s.phaseStarted.UTC(),
		Started:        s.started,
		Ended:          s.ended,
		Idea:           s.idea,
		CreatedAt:      s.createdAt.UTC(),
		EndedAt:        s.endedAt.UTC(),
		Ledger:         s.ledger.View(),
		Winner:         string(s.winner),
		Messages:       append([]Message(nil), s.log...),
		Cost:           s.costLocked(),
	}
}
