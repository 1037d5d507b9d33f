package ticket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	last    *Order
	err     error
	release chan struct{} // when set, SubmitOrder blocks until closed
}

func (f *fakeSubmitter) SubmitOrder(ctx context.Context, order *Order) error {
	f.mu.Lock()
	f.calls++
	f.last = order
	release := f.release
	err := f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubmitter) lastOrder() *Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []SubmissionRecord
}

func (f *fakeRecorder) RecordSubmission(_ context.Context, rec SubmissionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

func (f *fakeRecorder) records() []SubmissionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SubmissionRecord(nil), f.recs...)
}

func filledTicket(sub Submitter, rec Recorder) *Ticket {
	tk := New(Config{
		ID:        "t1",
		Asset:     "BTC-USD",
		Refs:      refs("100", "99", "101"),
		Submitter: sub,
		Recorder:  rec,
	})
	if _, err := tk.EditField(FieldQuantity, "2"); err != nil {
		panic(err)
	}
	return tk
}

func waitForPhase(t *testing.T, tk *Ticket, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tk.Snapshot().Phase == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("phase never reached %s, now %s", want, tk.Snapshot().Phase)
}

func TestSubmitSuccess(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := &fakeRecorder{}
	tk := filledTicket(sub, rec)

	snap, err := tk.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != PhaseSuccess {
		t.Errorf("phase = %q, want SUCCESS", snap.Phase)
	}
	if snap.Result == nil || snap.Result.Kind != ResultSuccess {
		t.Fatalf("result = %+v, want SUCCESS", snap.Result)
	}

	// Quantity and notional reset; price snaps back to the mid and resumes
	// tracking it.
	if snap.Quantity != "" || snap.Notional != "" {
		t.Errorf("quantity/notional = %q/%q, want cleared", snap.Quantity, snap.Notional)
	}
	if snap.Price != "100.00" {
		t.Errorf("price = %q, want reset to mid", snap.Price)
	}
	if got := tk.UpdateRefs(refs("105", "104", "106")).Price; got != "105.00" {
		t.Errorf("price = %q, want tracking re armed after success", got)
	}

	order := sub.lastOrder()
	if order == nil {
		t.Fatal("no order reached the submitter")
	}
	if order.Asset != "BTC-USD" || order.Side != SideBuy || order.Type != OrderTypeLimit {
		t.Errorf("order header = %s %s %s", order.Asset, order.Side, order.Type)
	}
	if !order.Quantity.Equal(dec("2")) || !order.Price.Equal(dec("100")) || !order.Notional.Equal(dec("200")) {
		t.Errorf("order amounts = %s/%s/%s", order.Quantity, order.Price, order.Notional)
	}

	recs := rec.records()
	if len(recs) != 1 || !recs[0].Accepted || recs[0].TicketID != "t1" {
		t.Errorf("records = %+v, want one accepted record", recs)
	}
}

func TestSubmitRejectKeepsFields(t *testing.T) {
	sub := &fakeSubmitter{err: &SubmissionError{Message: "Insufficient balance"}}
	tk := filledTicket(sub, nil)

	snap, err := tk.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != PhaseError {
		t.Errorf("phase = %q, want ERROR", snap.Phase)
	}
	if snap.Result == nil || snap.Result.Message != "Insufficient balance" {
		t.Fatalf("result = %+v, want venue message", snap.Result)
	}
	if snap.Quantity != "2" || snap.Price != "100.00" || snap.Notional != "200.00" {
		t.Errorf("fields = %q/%q/%q, want preserved for retry", snap.Price, snap.Quantity, snap.Notional)
	}

	// Retry without re-typing anything.
	sub.err = nil
	snap, err = tk.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != PhaseSuccess {
		t.Errorf("phase = %q, want SUCCESS on retry", snap.Phase)
	}
	if sub.callCount() != 2 {
		t.Errorf("calls = %d, want 2", sub.callCount())
	}
}

func TestSubmitGenericFailureMessage(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("dial tcp: connection refused")}
	tk := filledTicket(sub, nil)

	snap, err := tk.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Result == nil || snap.Result.Message != "Order failed" {
		t.Fatalf("result = %+v, want generic failure message", snap.Result)
	}

	sub.err = &SubmissionError{}
	if _, err := tk.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := tk.Snapshot().Result.Message; got != "Order failed" {
		t.Errorf("message = %q, want fallback when the venue gave no reason", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(tk *Ticket)
		field   Field
		message string
	}{
		{
			name:    "empty quantity",
			mutate:  func(tk *Ticket) {},
			field:   FieldQuantity,
			message: "Quantity must be greater than 0",
		},
		{
			name: "zero price",
			mutate: func(tk *Ticket) {
				tk.EditField(FieldQuantity, "2")
				tk.EditField(FieldPrice, "0")
			},
			field:   FieldPrice,
			message: "Price must be greater than 0",
		},
		{
			name: "garbage price",
			mutate: func(tk *Ticket) {
				tk.EditField(FieldQuantity, "2")
				tk.EditField(FieldPrice, "abc")
			},
			field:   FieldPrice,
			message: "Price must be greater than 0",
		},
		{
			name: "cleared notional",
			mutate: func(tk *Ticket) {
				tk.EditField(FieldQuantity, "2")
				tk.EditField(FieldNotional, "")
			},
			field:   FieldNotional,
			message: "Total must be greater than 0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			tk := New(Config{ID: "t1", Asset: "BTC-USD", Refs: refs("100", "99", "101"), Submitter: sub})
			tc.mutate(tk)

			snap, err := tk.Submit(context.Background())
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tc.field || verr.Message != tc.message {
				t.Errorf("got %s/%q, want %s/%q", verr.Field, verr.Message, tc.field, tc.message)
			}
			if snap.Phase != PhaseIdle {
				t.Errorf("phase = %q, want IDLE after validation failure", snap.Phase)
			}
			if sub.callCount() != 0 {
				t.Errorf("calls = %d, want no upstream call", sub.callCount())
			}
		})
	}
}

func TestSubmitWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	sub := &fakeSubmitter{release: release}
	tk := filledTicket(sub, nil)

	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := tk.Submit(context.Background())
		done <- snap
	}()
	waitForPhase(t, tk, PhaseSubmitting)

	if _, err := tk.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("err = %v, want ErrSubmitInFlight", err)
	}
	if sub.callCount() != 1 {
		t.Errorf("calls = %d, want the duplicate press dropped", sub.callCount())
	}

	close(release)
	snap := <-done
	if snap.Phase != PhaseSuccess {
		t.Errorf("phase = %q, want SUCCESS after release", snap.Phase)
	}
}

func TestOutcomeClearedByNextAction(t *testing.T) {
	sub := &fakeSubmitter{err: &SubmissionError{Message: "rejected"}}
	tk := filledTicket(sub, nil)

	if _, err := tk.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tk.Snapshot().Result == nil {
		t.Fatal("expected a settled result")
	}

	snap, err := tk.EditField(FieldQuantity, "3")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Result != nil || snap.Phase != PhaseIdle {
		t.Errorf("result/phase = %+v/%q, want cleared on edit", snap.Result, snap.Phase)
	}

	// Same for a side flip.
	if _, err := tk.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap, err = tk.SetSide(SideSell)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Result != nil {
		t.Errorf("result = %+v, want cleared on side change", snap.Result)
	}
}

func TestSubmitHistoryBounded(t *testing.T) {
	sub := &fakeSubmitter{err: &SubmissionError{Message: "rejected"}}
	tk := New(Config{
		ID:           "t1",
		Asset:        "BTC-USD",
		Refs:         refs("100", "99", "101"),
		Submitter:    sub,
		HistoryLimit: 3,
	})
	if _, err := tk.EditField(FieldQuantity, "1"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := tk.Submit(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	history := tk.Snapshot().History
	if len(history) != 3 {
		t.Fatalf("history length = %d, want capped at 3", len(history))
	}
	for _, rec := range history {
		if rec.Accepted {
			t.Errorf("record %+v, want rejected", rec)
		}
	}
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	tk := filledTicket(nil, nil)
	if _, err := tk.Submit(context.Background()); !errors.Is(err, ErrNoSubmitter) {
		t.Errorf("err = %v, want ErrNoSubmitter", err)
	}
}
