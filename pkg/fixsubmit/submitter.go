// Package fixsubmit submits ticket orders over a FIX 4.4 session instead of
// the HTTP backend. Each order goes out as a NewOrderSingle and settles on
// the correlated ExecutionReport.
package fixsubmit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"

	"github.com/joripage/orderentry-dev/pkg/ticket"
)

var (
	ErrNotLoggedOn   = errors.New("fix session not logged on")
	ErrSessionClosed = errors.New("fix session logged out")
)

type Config struct {
	// ConfigFilepath points at the quickfix initiator settings file.
	ConfigFilepath string `yaml:"config_filepath"`
}

// Submitter is a quickfix initiator application implementing
// ticket.Submitter.
type Submitter struct {
	*quickfix.MessageRouter
	initiator  *quickfix.Initiator
	shardQueue *shardqueue.Shardqueue

	mu        sync.Mutex
	sessionID quickfix.SessionID
	loggedOn  bool
	pending   map[string]chan error
}

func New(cfg *Config) (*Submitter, error) {
	s := &Submitter{
		MessageRouter: quickfix.NewMessageRouter(),
		pending:       make(map[string]chan error),
	}
	s.AddRoute(executionreport.Route(s.onExecutionReport))
	s.startShardQueue()

	f, err := os.Open(cfg.ConfigFilepath)
	if err != nil {
		return nil, fmt.Errorf("error opening %v, %v", cfg.ConfigFilepath, err)
	}
	defer f.Close() // nolint

	stringData, readErr := io.ReadAll(f)
	if readErr != nil {
		return nil, fmt.Errorf("error reading cfg: %s,", readErr)
	}

	settings, err := quickfix.ParseSettings(bytes.NewReader(stringData))
	if err != nil {
		return nil, fmt.Errorf("error reading cfg: %s,", err)
	}

	logFactory, _ := file.NewLogFactory(settings)
	initiator, err := quickfix.NewInitiator(s, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		return nil, fmt.Errorf("unable to create initiator: %s", err)
	}
	s.initiator = initiator

	return s, nil
}

// Start brings the FIX session up. Logon completes asynchronously; submits
// before logon fail with ErrNotLoggedOn.
func (s *Submitter) Start() error {
	if err := s.initiator.Start(); err != nil {
		return fmt.Errorf("unable to start FIX initiator: %s", err)
	}
	return nil
}

func (s *Submitter) Stop() {
	s.initiator.Stop()
}

// SubmitOrder implements ticket.Submitter. It sends a NewOrderSingle and
// blocks until the venue's ExecutionReport settles the order, the session
// drops, or ctx is cancelled. Venue rejects come back as
// *ticket.SubmissionError carrying Text(58) when present.
func (s *Submitter) SubmitOrder(ctx context.Context, order *ticket.Order) error {
	s.mu.Lock()
	if !s.loggedOn {
		s.mu.Unlock()
		return ErrNotLoggedOn
	}
	sessionID := s.sessionID
	clOrdID := uuid.NewString()
	done := make(chan error, 1)
	s.pending[clOrdID] = done
	s.mu.Unlock()

	msg := buildNewOrderSingle(order, clOrdID, sessionID)
	if err := quickfix.Send(msg); err != nil {
		s.drop(clOrdID)
		return fmt.Errorf("send order: %w", err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.drop(clOrdID)
		return ctx.Err()
	}
}

func (s *Submitter) drop(clOrdID string) {
	s.mu.Lock()
	delete(s.pending, clOrdID)
	s.mu.Unlock()
}

func buildNewOrderSingle(order *ticket.Order, clOrdID string, sessionID quickfix.SessionID) fix44nos.NewOrderSingle {
	side := enum.Side_BUY
	if order.Side == ticket.SideSell {
		side = enum.Side_SELL
	}

	msg := fix44nos.New(
		field.NewClOrdID(clOrdID),
		field.NewSide(side),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	msg.SetSymbol(order.Asset)
	msg.SetPrice(order.Price, 2)
	msg.SetOrderQty(order.Quantity, 8)
	msg.SetTimeInForce(enum.TimeInForce_DAY)
	msg.SetSenderCompID(sessionID.SenderCompID)
	msg.SetTargetCompID(sessionID.TargetCompID)
	return msg
}
