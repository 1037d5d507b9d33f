package refquote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = time.Second

type TrackerConfig struct {
	Source   Source
	Assets   []string
	Interval time.Duration
}

// Tracker polls a Source for the configured assets, keeps the latest quote
// per asset and fans changed quotes out to subscribers. A failed poll keeps
// the last known quote.
type Tracker struct {
	source   Source
	assets   []string
	interval time.Duration

	mu     sync.Mutex
	latest map[string]Quote
	subs   map[int]chan Quote
	nextID int
}

func NewTracker(cfg TrackerConfig) *Tracker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	assets := make([]string, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		assets = append(assets, strings.ToUpper(a))
	}
	return &Tracker{
		source:   cfg.Source,
		assets:   assets,
		interval: interval,
		latest:   make(map[string]Quote),
		subs:     make(map[int]chan Quote),
	}
}

// Start loads the first round of quotes and launches the poll loop. The loop
// stops when ctx is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	t.pollOnce(ctx)
	go t.loop(ctx)
}

func (t *Tracker) loop(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

func (t *Tracker) pollOnce(ctx context.Context) {
	for _, asset := range t.assets {
		q, err := t.source.Fetch(ctx, asset)
		if err != nil {
			if !errors.Is(err, ErrNoQuote) {
				zap.S().Warnf("fetch quote %s: %v", asset, err)
			}
			continue
		}
		t.store(q)
	}
}

// store keeps the quote and notifies subscribers when the levels moved.
// Slow subscribers drop updates instead of stalling the poll loop.
func (t *Tracker) store(q Quote) {
	q.Asset = strings.ToUpper(q.Asset)

	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.latest[q.Asset]
	if seen && prev.Bid.Equal(q.Bid) && prev.Ask.Equal(q.Ask) && prev.Mid.Equal(q.Mid) {
		return
	}
	t.latest[q.Asset] = q
	for _, ch := range t.subs {
		select {
		case ch <- q:
		default:
		}
	}
}

// Latest returns the most recent quote for asset, if one has been seen.
func (t *Tracker) Latest(asset string) (Quote, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.latest[strings.ToUpper(asset)]
	return q, ok
}

// Assets returns the tracked asset list.
func (t *Tracker) Assets() []string {
	out := make([]string, len(t.assets))
	copy(out, t.assets)
	return out
}

// Subscribe registers for quote updates across all tracked assets. The
// returned cancel func must be called to release the subscription.
func (t *Tracker) Subscribe(buffer int) (<-chan Quote, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Quote, buffer)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
