package session

import (
	"time"

	"github.com/louisbranch/bidstage/internal/services/bidding/dialogue"
	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
)

// Message is one immutable log entry. Bid is set only when the bid was
// accepted into the ledger.
type Message struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	PersonaID   persona.ID      `json:"personaId"`
	PersonaName string          `json:"personaName"`
	Phase       string          `json:"phase"`
	Round       int             `json:"round"`
	Content     string          `json:"content"`
	Emotion     string          `json:"emotion"`
	Bid         int             `json:"bid,omitempty"`
	Origin      dialogue.Origin `json:"origin"`
	Provider    string          `json:"provider,omitempty"`
	Cost        string          `json:"cost"`
	Tokens      int             `json:"tokens,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// recent returns up to limit trailing messages.
func recent(log []Message, limit int) []Message {
	if limit <= 0 || len(log) <= limit {
		return append([]Message(nil), log...)
	}
	return append([]Message(nil), log[len(log)-limit:]...)
}
