package session

import (
	"encoding/json"
	"time"
)

// Outbound event types.
const (
	EventSessionInit        = "session.init"
	EventTimerUpdate        = "timer.update"
	EventStageStarted       = "stage.started"
	EventStageEnded         = "stage.ended"
	EventPersonaSpeech      = "persona.speech"
	EventBidPlaced          = "bid.placed"
	EventCostUpdate         = "cost.update"
	EventSupplementReceived = "user.supplement.received"
	EventReactionReceived   = "user.reaction.received"
	EventSupportReceived    = "user.support.received"
	EventPredictionReceived = "user.prediction.received"
)

// Event is one typed frame fanned out to subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// InitPayload is the attach snapshot.
type InitPayload struct {
	SessionID        string            `json:"sessionId"`
	SubmissionID     string            `json:"submissionId"`
	Phase            string            `json:"phase"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Round            int               `json:"round"`
	Started          bool              `json:"started"`
	Ended            bool              `json:"ended"`
	Messages         []Message         `json:"messages"`
	Ledger           LedgerView        `json:"ledger"`
	Cost             CostUpdatePayload `json:"cost"`
}

// TimerPayload reports the countdown of the current phase.
type TimerPayload struct {
	Phase            string `json:"phase"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

// StagePayload announces a phase start.
type StagePayload struct {
	Phase           string    `json:"phase"`
	DurationSeconds int       `json:"durationSeconds"`
	StartedAt       time.Time `json:"startedAt"`
}

// EndedPayload closes the session.
type EndedPayload struct {
	Winner     string         `json:"winner,omitempty"`
	WinnerName string         `json:"winnerName,omitempty"`
	HighestBid int            `json:"highestBid"`
	Bids       map[string]int `json:"bids"`
	EndedAt    time.Time      `json:"endedAt"`
}

// BidPayload reports an accepted bid.
type BidPayload struct {
	PersonaID   string `json:"personaId"`
	PersonaName string `json:"personaName"`
	Amount      int    `json:"amount"`
	Previous    int    `json:"previous"`
	HighestBid  int    `json:"highestBid"`
	Leader      string `json:"leader,omitempty"`
	MessageID   string `json:"messageId"`
}

// CostUpdatePayload reports session spend.
type CostUpdatePayload struct {
	TotalCost        string `json:"totalCost"`
	BudgetUnits      string `json:"budgetUnits"`
	RealCalls        int    `json:"realCalls"`
	ThresholdReached bool   `json:"thresholdReached"`
}

// AnnotationPayload echoes a viewer annotation back to every subscriber.
type AnnotationPayload struct {
	ViewerID   string          `json:"viewerId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// SupplementPayload acknowledges added submission context.
type SupplementPayload struct {
	ViewerID   string    `json:"viewerId,omitempty"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"receivedAt"`
}
