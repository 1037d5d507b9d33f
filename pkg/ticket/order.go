package ticket

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents order type. Tickets only produce limit orders.
type OrderType string

const (
	OrderTypeLimit OrderType = "LIMIT"
)

// Order is the validated, fully reconciled order a ticket hands to its
// Submitter. Amounts carry the rounded values the ticket displayed, not the
// raw user input.
type Order struct {
	Asset    string
	Side     Side
	Type     OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Notional decimal.Decimal
}

// References are the quote levels a ticket prices against.
type References struct {
	Mid decimal.Decimal
	Bid decimal.Decimal
	Ask decimal.Decimal
}

func (r References) byPreset(p Preset) decimal.Decimal {
	switch p {
	case PresetBid:
		return r.Bid
	case PresetAsk:
		return r.Ask
	}
	return r.Mid
}

// Submitter delivers an order to the upstream venue. Implementations block
// until the venue accepts or rejects and return a *SubmissionError for a
// venue-side reject.
type Submitter interface {
	SubmitOrder(ctx context.Context, order *Order) error
}

// SubmissionRecord describes one settled submission attempt.
type SubmissionRecord struct {
	TicketID string    `json:"ticket_id"`
	Asset    string    `json:"asset"`
	Side     Side      `json:"side"`
	Quantity string    `json:"quantity"`
	Price    string    `json:"price"`
	Notional string    `json:"notional"`
	Accepted bool      `json:"accepted"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Recorder receives settled submission attempts for audit. Calls happen
// outside the ticket lock and must not block submission handling.
type Recorder interface {
	RecordSubmission(ctx context.Context, rec SubmissionRecord)
}
