package session

import (
	"sort"

	"github.com/louisbranch/bidstage/internal/services/bidding/persona"
)

// StartingBid is the running maximum before any bid is accepted.
const StartingBid = 50

// Ledger tracks each persona's current bid and the running maximum. The
// leader is the first persona to reach the maximum.
type Ledger struct {
	bids    map[persona.ID]int
	highest int
	leader  persona.ID
}

// NewLedger returns an empty ledger.
func NewLedger() Ledger {
	return Ledger{bids: make(map[persona.ID]int), highest: StartingBid}
}

// Apply records amount for id when it raises that persona's bid. It returns
// the previous bid and whether the bid was accepted.
func (l *Ledger) Apply(id persona.ID, amount int) (int, bool) {
	if l.bids == nil {
		*l = NewLedger()
	}
	previous := l.bids[id]
	if id == "" || amount <= previous {
		return previous, false
	}
	l.bids[id] = amount
	if amount > l.highest {
		l.highest = amount
		l.leader = id
	}
	return previous, true
}

// Bid returns the current bid of id.
func (l Ledger) Bid(id persona.ID) int {
	return l.bids[id]
}

// Highest returns the running maximum.
func (l Ledger) Highest() int {
	if l.bids == nil {
		return StartingBid
	}
	return l.highest
}

// Leader returns the persona holding the maximum, if any bid beat the
// starting amount.
func (l Ledger) Leader() persona.ID {
	return l.leader
}

// Bids returns a copy of the current bids.
func (l Ledger) Bids() map[persona.ID]int {
	out := make(map[persona.ID]int, len(l.bids))
	for id, amount := range l.bids {
		out[id] = amount
	}
	return out
}

// View renders the ledger for the wire.
func (l Ledger) View() LedgerView {
	view := LedgerView{Bids: make(map[string]int, len(l.bids)), Highest: l.Highest(), Leader: string(l.leader)}
	for id, amount := range l.bids {
		view.Bids[string(id)] = amount
	}
	return view
}

// LedgerView is the serialized ledger.
type LedgerView struct {
	Bids    map[string]int `json:"bids"`
	Highest int            `json:"highest"`
	Leader  string         `json:"leader,omitempty"`
}

// ReplayLedger rebuilds the ledger from a message log.
func ReplayLedger(log []Message) Ledger {
	ledger := NewLedger()
	for _, msg := range log {
		if msg.Bid > 0 {
			ledger.Apply(msg.PersonaID, msg.Bid)
		}
	}
	return ledger
}

// Standing is one persona's final position.
type Standing struct {
	PersonaID persona.ID
	Amount    int
}

// Standings orders bids from highest to lowest. Equal amounts keep the
// order in which the personas first reached them.
func Standings(log []Message) []Standing {
	reached := make(map[persona.ID]int)
	ledger := NewLedger()
	for i, msg := range log {
		if msg.Bid <= 0 {
			continue
		}
		if _, ok := ledger.Apply(msg.PersonaID, msg.Bid); ok {
			reached[msg.PersonaID] = i
		}
	}
	out := make([]Standing, 0, len(reached))
	for id, amount := range ledger.bids {
		out = append(out, Standing{PersonaID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return reached[out[i].PersonaID] < reached[out[j].PersonaID]
	})
	return out
}
