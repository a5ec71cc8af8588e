package xnats

import (
	"peachcash/pkg/journal"

	"github.com/shopspring/decimal"
)

// ExchangeEvent is what the follow app publishes for every journal line
type ExchangeEvent struct {
	LogID    int64           `json:"logID"`
	Ts       int64           `json:"ts"` // unix ns
	TxID     string          `json:"txID"`
	State    journal.State   `json:"state"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Amount   decimal.Decimal `json:"amount"`   // debited, in From units
	Received decimal.Decimal `json:"received"` // credited, in To units
	Rate     decimal.Decimal `json:"rate"`
	Reason   string          `json:"reason,omitempty"`
}

// EventFromEntry flattens a journal entry, legs are only known on pending lines
func EventFromEntry(e journal.Entry) ExchangeEvent {
	ev := ExchangeEvent{
		LogID:  e.LogID,
		Ts:     e.Ts,
		TxID:   e.TxID,
		State:  e.State,
		Reason: e.Reason,
	}
	if e.Tx != nil {
		ev.From = e.Tx.From.AssetID
		ev.To = e.Tx.To.AssetID
		ev.Amount = e.Tx.From.Amount
		ev.Received = e.Tx.To.Amount
		ev.Rate = e.Tx.Rate
	}
	return ev
}

// Subject is prefix.<state>, e.g. PEACH.exchange.committed
func Subject(prefix string, state journal.State) string {
	return prefix + "." + string(state)
}
