package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/joripage/orderentry-dev/pkg/refquote"
	"github.com/joripage/orderentry-dev/pkg/ticket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSubmitter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSubmitter) SubmitOrder(_ context.Context, _ *ticket.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubBooks struct {
	snapshot json.RawMessage
	err      error
}

func (s *stubBooks) FetchOrderBook(_ context.Context, _ string) (json.RawMessage, error) {
	return s.snapshot, s.err
}

type stubQuotes struct {
	mu     sync.Mutex
	quotes map[string]refquote.Quote
}

func (s *stubQuotes) Fetch(_ context.Context, asset string) (refquote.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[asset]
	if !ok {
		return refquote.Quote{}, refquote.ErrNoQuote
	}
	return q, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func btcQuote(mid string) refquote.Quote {
	return refquote.Quote{Asset: "BTC-USD", Bid: dec("64000"), Ask: dec("64001"), Mid: dec(mid)}
}

func newTestServer(t *testing.T, sub ticket.Submitter, books BookSource) *Server {
	t.Helper()
	src := &stubQuotes{quotes: map[string]refquote.Quote{"BTC-USD": btcQuote("64000.5")}}
	tracker := refquote.NewTracker(refquote.TrackerConfig{
		Source:   src,
		Assets:   []string{"BTC-USD"},
		Interval: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tracker.Start(ctx)

	registry := NewRegistry(RegistryConfig{Submitter: sub, Tracker: tracker})
	return NewServer(Config{Addr: ":0"}, registry, books, tracker)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) ticket.Snapshot {
	t.Helper()
	var snap ticket.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v (%s)", err, w.Body.String())
	}
	return snap
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return body.Error, body.Field
}

func createTicket(t *testing.T, srv *Server, asset string) ticket.Snapshot {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/v1/tickets", gin.H{"asset": asset})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d (%s)", w.Code, w.Body.String())
	}
	return decodeSnapshot(t, w)
}

func TestCreateTicket(t *testing.T) {
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{})

	snap := createTicket(t, srv, "btc-usd")
	if snap.ID == "" {
		t.Error("missing ticket id")
	}
	if snap.Asset != "BTC-USD" {
		t.Errorf("asset = %q, want normalized", snap.Asset)
	}
	if snap.Price != "64000.50" {
		t.Errorf("price = %q, want seeded from mid", snap.Price)
	}
	if snap.Side != ticket.SideBuy || snap.Phase != ticket.PhaseIdle {
		t.Errorf("side/phase = %s/%s", snap.Side, snap.Phase)
	}

	// No quote known for this asset: price stays empty until one arrives.
	snap = createTicket(t, srv, "ETH-USD")
	if snap.Price != "" {
		t.Errorf("price = %q, want empty without a quote", snap.Price)
	}

	w := doJSON(t, srv, http.MethodPost, "/api/v1/tickets", gin.H{"asset": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing asset = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/api/v1/tickets", gin.H{"asset": "BTC-USD", "side": "SHORT"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad side = %d", w.Code)
	}
}

func TestTicketLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{})
	id := createTicket(t, srv, "BTC-USD").ID
	base := "/api/v1/tickets/" + id

	w := doJSON(t, srv, http.MethodPut, base+"/fields", gin.H{"field": "quantity", "value": "2"})
	if w.Code != http.StatusOK {
		t.Fatalf("edit = %d (%s)", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w)
	if snap.Quantity != "2" || snap.Notional != "128001.00" {
		t.Errorf("after edit = %q/%q", snap.Quantity, snap.Notional)
	}

	w = doJSON(t, srv, http.MethodPost, base+"/preset", gin.H{"preset": "bid"})
	snap = decodeSnapshot(t, w)
	if snap.Price != "64000.00" || snap.Notional != "128000.00" {
		t.Errorf("after preset = %q/%q", snap.Price, snap.Notional)
	}

	w = doJSON(t, srv, http.MethodPut, base+"/side", gin.H{"side": "sell"})
	snap = decodeSnapshot(t, w)
	if snap.Side != ticket.SideSell {
		t.Errorf("side = %s", snap.Side)
	}
	if snap.Quantity != "2" {
		t.Errorf("quantity = %q, fields must survive a side flip", snap.Quantity)
	}

	// Clearing a field stores the empty string and leaves the derived value.
	w = doJSON(t, srv, http.MethodPut, base+"/fields", gin.H{"field": "quantity", "value": ""})
	snap = decodeSnapshot(t, w)
	if snap.Quantity != "" || snap.Notional != "128000.00" {
		t.Errorf("after clear = %q/%q", snap.Quantity, snap.Notional)
	}

	w = doJSON(t, srv, http.MethodGet, base, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodDelete, base, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, base, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestUnknownTicket(t *testing.T) {
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{})
	for _, req := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/v1/tickets/nope", nil},
		{http.MethodPut, "/api/v1/tickets/nope/fields", gin.H{"field": "price", "value": "1"}},
		{http.MethodPost, "/api/v1/tickets/nope/preset", gin.H{"preset": "MID"}},
		{http.MethodPut, "/api/v1/tickets/nope/side", gin.H{"side": "BUY"}},
		{http.MethodPost, "/api/v1/tickets/nope/submit", nil},
		{http.MethodDelete, "/api/v1/tickets/nope", nil},
	} {
		w := doJSON(t, srv, req.method, req.path, req.body)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", req.method, req.path, w.Code)
		}
	}
}

func TestSubmitValidationError(t *testing.T) {
	sub := &stubSubmitter{}
	srv := newTestServer(t, sub, &stubBooks{})
	id := createTicket(t, srv, "BTC-USD").ID

	w := doJSON(t, srv, http.MethodPost, "/api/v1/tickets/"+id+"/submit", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit = %d (%s)", w.Code, w.Body.String())
	}
	msg, field := decodeError(t, w)
	if msg != "Quantity must be greater than 0" || field != "quantity" {
		t.Errorf("error = %q field=%q", msg, field)
	}
	if sub.callCount() != 0 {
		t.Errorf("calls = %d, want validation to block the upstream call", sub.callCount())
	}
}

func TestSubmitSuccess(t *testing.T) {
	sub := &stubSubmitter{}
	srv := newTestServer(t, sub, &stubBooks{})
	id := createTicket(t, srv, "BTC-USD").ID
	base := "/api/v1/tickets/" + id

	doJSON(t, srv, http.MethodPut, base+"/fields", gin.H{"field": "quantity", "value": "0.5"})
	w := doJSON(t, srv, http.MethodPost, base+"/submit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit = %d (%s)", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w)
	if snap.Phase != ticket.PhaseSuccess {
		t.Errorf("phase = %s", snap.Phase)
	}
	if snap.Quantity != "" || snap.Notional != "" || snap.Price != "64000.50" {
		t.Errorf("fields after success = %q/%q/%q", snap.Price, snap.Quantity, snap.Notional)
	}
	if sub.callCount() != 1 {
		t.Errorf("calls = %d", sub.callCount())
	}
	if len(snap.History) != 1 || !snap.History[0].Accepted {
		t.Errorf("history = %+v", snap.History)
	}
}

func TestSubmitRejected(t *testing.T) {
	sub := &stubSubmitter{err: &ticket.SubmissionError{Message: "Insufficient balance"}}
	srv := newTestServer(t, sub, &stubBooks{})
	id := createTicket(t, srv, "BTC-USD").ID
	base := "/api/v1/tickets/" + id

	doJSON(t, srv, http.MethodPut, base+"/fields", gin.H{"field": "quantity", "value": "0.5"})
	w := doJSON(t, srv, http.MethodPost, base+"/submit", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("submit = %d (%s)", w.Code, w.Body.String())
	}
	msg, _ := decodeError(t, w)
	if msg != "Insufficient balance" {
		t.Errorf("error = %q", msg)
	}

	// Fields survive for a retry.
	snap := decodeSnapshot(t, doJSON(t, srv, http.MethodGet, base, nil))
	if snap.Quantity != "0.5" || snap.Phase != ticket.PhaseError {
		t.Errorf("after reject = %q/%s", snap.Quantity, snap.Phase)
	}
}

func TestOrderBookProxy(t *testing.T) {
	book := json.RawMessage(`{"bids":[["64000.00","1.5"]],"asks":[["64001.00","2.0"]]}`)
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{snapshot: book})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/orderbook/btc-usd", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("orderbook = %d", w.Code)
	}
	if w.Body.String() != string(book) {
		t.Errorf("body = %s, want passthrough", w.Body.String())
	}

	srv = newTestServer(t, &stubSubmitter{}, &stubBooks{err: errors.New("upstream down")})
	w = doJSON(t, srv, http.MethodGet, "/api/v1/orderbook/btc-usd", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("orderbook = %d", w.Code)
	}
	msg, _ := decodeError(t, w)
	if msg != "Failed to fetch orderbook" {
		t.Errorf("error = %q", msg)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/quotes/btc-usd", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("quotes = %d", w.Code)
	}
	var q refquote.Quote
	if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
		t.Fatal(err)
	}
	if q.Asset != "BTC-USD" || !q.Mid.Equal(dec("64000.5")) {
		t.Errorf("quote = %+v", q)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/quotes/DOGE-USD", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown asset = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{})
	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health = %d", w.Code)
	}
}

func TestRegistryQuoteFanout(t *testing.T) {
	srv := newTestServer(t, &stubSubmitter{}, &stubBooks{})
	id := createTicket(t, srv, "BTC-USD").ID
	base := "/api/v1/tickets/" + id

	srv.registry.applyQuote(btcQuote("65000"))
	snap := decodeSnapshot(t, doJSON(t, srv, http.MethodGet, base, nil))
	if snap.Price != "65000.00" {
		t.Errorf("price = %q, want tracked mid", snap.Price)
	}

	// Once the user touches price the fanout no longer moves it.
	doJSON(t, srv, http.MethodPut, base+"/fields", gin.H{"field": "price", "value": "64500"})
	srv.registry.applyQuote(btcQuote("66000"))
	snap = decodeSnapshot(t, doJSON(t, srv, http.MethodGet, base, nil))
	if snap.Price != "64500" {
		t.Errorf("price = %q, want user value", snap.Price)
	}

	// Quotes for other assets leave the ticket alone.
	srv.registry.applyQuote(refquote.Quote{Asset: "ETH-USD", Mid: dec("3000")})
	snap = decodeSnapshot(t, doJSON(t, srv, http.MethodGet, base, nil))
	if snap.Price != "64500" {
		t.Errorf("price = %q after unrelated quote", snap.Price)
	}
}
