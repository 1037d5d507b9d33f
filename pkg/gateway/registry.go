package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joripage/orderentry-dev/pkg/refquote"
	"github.com/joripage/orderentry-dev/pkg/ticket"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrMissingAsset   = errors.New("asset is required")
)

// Registry owns the live ticket sessions. It hands every new ticket the
// current reference prices and keeps feeding quote updates to the tickets of
// that asset so pristine prices track the mid.
type Registry struct {
	submitter    ticket.Submitter
	recorder     ticket.Recorder
	tracker      *refquote.Tracker
	historyLimit int

	mu      sync.RWMutex
	tickets map[string]*ticket.Ticket
}

type RegistryConfig struct {
	Submitter    ticket.Submitter
	Recorder     ticket.Recorder
	Tracker      *refquote.Tracker
	HistoryLimit int
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		submitter:    cfg.Submitter,
		recorder:     cfg.Recorder,
		tracker:      cfg.Tracker,
		historyLimit: cfg.HistoryLimit,
		tickets:      make(map[string]*ticket.Ticket),
	}
}

// Start launches the quote fanout loop.
func (r *Registry) Start(ctx context.Context) {
	if r.tracker == nil {
		return
	}
	updates, cancel := r.tracker.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case q, ok := <-updates:
				if !ok {
					return
				}
				r.applyQuote(q)
			}
		}
	}()
}

func (r *Registry) applyQuote(q refquote.Quote) {
	refs := ticket.References{Mid: q.Mid, Bid: q.Bid, Ask: q.Ask}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tk := range r.tickets {
		if tk.Asset() == q.Asset {
			tk.UpdateRefs(refs)
		}
	}
}

// Create opens a new ticket session for asset, seeded from the latest known
// quote.
func (r *Registry) Create(asset string, side ticket.Side) (*ticket.Ticket, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return nil, ErrMissingAsset
	}
	if side != "" && side != ticket.SideBuy && side != ticket.SideSell {
		return nil, ticket.ErrUnknownSide
	}

	var refs ticket.References
	if r.tracker != nil {
		if q, ok := r.tracker.Latest(asset); ok {
			refs = ticket.References{Mid: q.Mid, Bid: q.Bid, Ask: q.Ask}
		}
	}

	tk := ticket.New(ticket.Config{
		ID:           uuid.NewString(),
		Asset:        asset,
		Side:         side,
		Refs:         refs,
		Submitter:    r.submitter,
		Recorder:     r.recorder,
		HistoryLimit: r.historyLimit,
	})

	r.mu.Lock()
	r.tickets[tk.ID()] = tk
	r.mu.Unlock()
	return tk, nil
}

// Get looks a ticket up by id.
func (r *Registry) Get(id string) (*ticket.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tk, ok := r.tickets[id]
	return tk, ok
}

// Remove closes a ticket session.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return false
	}
	delete(r.tickets, id)
	return true
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}
