// Package ticket implements the order entry ticket: a three field limit
// order form whose price, quantity and notional are kept consistent by a
// directed reconciliation rule, plus the submission state machine that turns
// a valid ticket into an upstream order.
package ticket

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// Preset names a reference level the price field can be set from.
type Preset string

const (
	PresetMid Preset = "MID"
	PresetBid Preset = "BID"
	PresetAsk Preset = "ASK"
)

// Phase is the submission lifecycle state of a ticket.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseSuccess    Phase = "SUCCESS"
	PhaseError      Phase = "ERROR"
)

// ResultKind distinguishes the two settled submission outcomes.
type ResultKind string

const (
	ResultSuccess ResultKind = "SUCCESS"
	ResultError   ResultKind = "ERROR"
)

const (
	successMessage = "Order submitted"
	failureMessage = "Order failed"

	defaultHistoryLimit = 16
)

// SubmissionResult is the outcome banner of the most recent settled attempt.
// It survives until the next edit, side change or submit.
type SubmissionResult struct {
	Kind    ResultKind `json:"kind"`
	Message string     `json:"message"`
}

// Snapshot is a point in time copy of the ticket state.
type Snapshot struct {
	ID       string             `json:"id"`
	Asset    string             `json:"asset"`
	Side     Side               `json:"side"`
	Price    string             `json:"price"`
	Quantity string             `json:"quantity"`
	Notional string             `json:"notional"`
	Phase    Phase              `json:"phase"`
	Result   *SubmissionResult  `json:"result,omitempty"`
	History  []SubmissionRecord `json:"history,omitempty"`
}

// Config carries the collaborators and initial state for a ticket.
type Config struct {
	ID        string
	Asset     string
	Side      Side
	Refs      References
	Submitter Submitter
	Recorder  Recorder

	// HistoryLimit bounds the retained submission records. Zero means the
	// default of 16.
	HistoryLimit int
}

// Ticket is a single order entry session. All methods are safe for
// concurrent use.
type Ticket struct {
	id        string
	asset     string
	submitter Submitter
	recorder  Recorder

	mu            sync.Mutex
	side          Side
	fields        Fields
	refs          References
	pricePristine bool
	phase         Phase
	result        *SubmissionResult
	history       deque.Deque[SubmissionRecord]
	historyLimit  int
}

// New builds a ticket. The price field is seeded from the mid reference when
// one is known and keeps tracking the mid until the user touches price.
func New(cfg Config) *Ticket {
	side := cfg.Side
	if side == "" {
		side = SideBuy
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	t := &Ticket{
		id:            cfg.ID,
		asset:         cfg.Asset,
		submitter:     cfg.Submitter,
		recorder:      cfg.Recorder,
		side:          side,
		refs:          cfg.Refs,
		pricePristine: true,
		phase:         PhaseIdle,
		historyLimit:  limit,
	}
	if cfg.Refs.Mid.IsPositive() {
		t.fields.Price = FormatPrice(cfg.Refs.Mid)
	}
	return t
}

// ID returns the ticket identifier.
func (t *Ticket) ID() string { return t.id }

// Asset returns the instrument the ticket trades.
func (t *Ticket) Asset() string { return t.asset }

// EditField stores a user edit and reconciles the dependent field. Editing
// price, directly or via a preset, stops the field from tracking the mid.
func (t *Ticket) EditField(field Field, value string) (Snapshot, error) {
	switch field {
	case FieldPrice, FieldQuantity, FieldNotional:
	default:
		return Snapshot{}, ErrUnknownField
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearOutcomeLocked()
	if field == FieldPrice {
		t.pricePristine = false
	}
	t.fields = Reconcile(t.fields, field, value)
	return t.snapshotLocked(), nil
}

// ApplyPreset sets price from the chosen reference level and reconciles,
// exactly as if the user had typed the formatted value.
func (t *Ticket) ApplyPreset(p Preset) (Snapshot, error) {
	switch p {
	case PresetMid, PresetBid, PresetAsk:
	default:
		return Snapshot{}, ErrUnknownPreset
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearOutcomeLocked()
	t.pricePristine = false
	t.fields = Reconcile(t.fields, FieldPrice, FormatPrice(t.refs.byPreset(p)))
	return t.snapshotLocked(), nil
}

// SetSide switches the ticket between buy and sell. Field values survive a
// side change; the last submission outcome does not.
func (t *Ticket) SetSide(s Side) (Snapshot, error) {
	if s != SideBuy && s != SideSell {
		return Snapshot{}, ErrUnknownSide
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearOutcomeLocked()
	t.side = s
	return t.snapshotLocked(), nil
}

// UpdateRefs installs fresh reference levels. While the price field is
// untouched it follows the mid; a quote tick is not a user action, so the
// field stays pristine and any displayed outcome stays up.
func (t *Ticket) UpdateRefs(r References) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs = r
	if t.pricePristine && r.Mid.IsPositive() {
		t.fields = Reconcile(t.fields, FieldPrice, FormatPrice(r.Mid))
	}
	return t.snapshotLocked()
}

// Refs returns the reference levels the ticket currently prices against.
func (t *Ticket) Refs() References {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs
}

// Snapshot returns a copy of the current state.
func (t *Ticket) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Submit validates the ticket and sends the order upstream. It blocks until
// the attempt settles. A validation failure returns a *ValidationError and
// leaves the ticket idle. While an attempt is in flight further calls return
// ErrSubmitInFlight without touching the network. A settled attempt is
// reported through the snapshot's Phase and Result, not through the error
// return: upstream rejection is an outcome, not a caller mistake.
func (t *Ticket) Submit(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	if t.phase == PhaseSubmitting {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, ErrSubmitInFlight
	}
	if t.submitter == nil {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, ErrNoSubmitter
	}
	t.phase = PhaseIdle
	t.result = nil
	order, verr := t.buildOrderLocked()
	if verr != nil {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, verr
	}
	t.phase = PhaseSubmitting
	t.mu.Unlock()

	err := t.submitter.SubmitOrder(ctx, order)

	t.mu.Lock()
	rec := SubmissionRecord{
		TicketID: t.id,
		Asset:    order.Asset,
		Side:     order.Side,
		Quantity: FormatQuantity(order.Quantity),
		Price:    FormatPrice(order.Price),
		Notional: FormatPrice(order.Notional),
		At:       time.Now().UTC(),
	}
	if err != nil {
		rec.Message = rejectMessage(err)
		t.phase = PhaseError
		t.result = &SubmissionResult{Kind: ResultError, Message: rec.Message}
	} else {
		rec.Accepted = true
		rec.Message = successMessage
		t.phase = PhaseSuccess
		t.result = &SubmissionResult{Kind: ResultSuccess, Message: successMessage}
		t.fields = Fields{}
		if t.refs.Mid.IsPositive() {
			t.fields.Price = FormatPrice(t.refs.Mid)
		}
		t.pricePristine = true
	}
	t.pushHistoryLocked(rec)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.recorder != nil {
		t.recorder.RecordSubmission(ctx, rec)
	}
	return snap, nil
}

// buildOrderLocked validates every field and assembles the outbound order
// from the rounded values the ticket displays.
func (t *Ticket) buildOrderLocked() (*Order, error) {
	for _, f := range []Field{FieldPrice, FieldQuantity, FieldNotional} {
		if _, ok := ParseAmount(t.fields.get(f)); !ok {
			return nil, &ValidationError{Field: f, Message: fieldMessage(f)}
		}
	}
	price, _ := ParseAmount(t.fields.Price)
	qty, _ := ParseAmount(t.fields.Quantity)
	notional, _ := ParseAmount(t.fields.Notional)
	return &Order{
		Asset:    t.asset,
		Side:     t.side,
		Type:     OrderTypeLimit,
		Quantity: qty,
		Price:    price,
		Notional: notional,
	}, nil
}

// clearOutcomeLocked wipes the settled outcome on user actions. An attempt
// still in flight keeps its phase; its result arrives when it settles.
func (t *Ticket) clearOutcomeLocked() {
	if t.phase != PhaseSubmitting {
		t.phase = PhaseIdle
	}
	t.result = nil
}

func (t *Ticket) pushHistoryLocked(rec SubmissionRecord) {
	t.history.PushBack(rec)
	for t.history.Len() > t.historyLimit {
		t.history.PopFront()
	}
}

func (t *Ticket) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:       t.id,
		Asset:    t.asset,
		Side:     t.side,
		Price:    t.fields.Price,
		Quantity: t.fields.Quantity,
		Notional: t.fields.Notional,
		Phase:    t.phase,
	}
	if t.result != nil {
		r := *t.result
		snap.Result = &r
	}
	if n := t.history.Len(); n > 0 {
		snap.History = make([]SubmissionRecord, n)
		for i := 0; i < n; i++ {
			snap.History[i] = t.history.At(i)
		}
	}
	return snap
}

func rejectMessage(err error) string {
	if se, ok := asSubmissionError(err); ok {
		return se.Error()
	}
	return failureMessage
}
