package fixsubmit

import (
	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"

	"github.com/joripage/orderentry-dev/pkg/ticket"
)

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

const (
	numShards = 8
	queueSize = 10_000
)

// OnCreate implemented as part of Application interface
func (s *Submitter) OnCreate(sessionID quickfix.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

// OnLogon implemented as part of Application interface
func (s *Submitter) OnLogon(sessionID quickfix.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.loggedOn = true
}

// OnLogout implemented as part of Application interface. Orders still
// waiting for a report cannot complete once the session drops.
func (s *Submitter) OnLogout(sessionID quickfix.SessionID) {
	s.mu.Lock()
	s.loggedOn = false
	pending := s.pending
	s.pending = make(map[string]chan error)
	s.mu.Unlock()

	for _, ch := range pending {
		select {
		case ch <- ErrSessionClosed:
		default:
		}
	}
}

// ToAdmin implemented as part of Application interface
func (s *Submitter) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (s *Submitter) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (s *Submitter) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp implemented as part of Application interface. Inbound reports are
// sharded by ClOrdID so reports for one order stay in sequence.
func (s *Submitter) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	s.shardQueue.Shard(routingKey(msg, sessionID), &inboundMsg{msg, sessionID})
	return nil
}

func routingKey(msg *quickfix.Message, sessionID quickfix.SessionID) string {
	if clOrdID, err := msg.Body.GetString(tag.ClOrdID); err == nil && clOrdID != "" {
		return clOrdID
	}

	if msgType, err := msg.Header.GetString(tag.MsgType); err == nil {
		return "MSGTYPE:" + msgType
	}

	return sessionID.String()
}

func (s *Submitter) startShardQueue() {
	s.shardQueue = shardqueue.NewShardQueue(numShards, queueSize)
	s.shardQueue.Start(func(msg interface{}) error {
		if v, ok := msg.(*inboundMsg); ok {
			s.Route(v.msg, v.sessionID)
		}
		return nil
	})
}

func (s *Submitter) onExecutionReport(msg executionreport.ExecutionReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, err := msg.GetClOrdID()
	if err != nil || clOrdID == "" {
		return nil
	}
	ordStatus, err := msg.GetOrdStatus()
	if err != nil {
		return nil
	}

	switch ordStatus {
	case enum.OrdStatus_NEW, enum.OrdStatus_FILLED, enum.OrdStatus_PARTIALLY_FILLED:
		s.resolve(clOrdID, nil)
	case enum.OrdStatus_REJECTED, enum.OrdStatus_CANCELED, enum.OrdStatus_EXPIRED:
		text, _ := msg.GetText()
		s.resolve(clOrdID, &ticket.SubmissionError{Message: text})
	}
	return nil
}

func (s *Submitter) resolve(clOrdID string, outcome error) {
	s.mu.Lock()
	ch, ok := s.pending[clOrdID]
	if ok {
		delete(s.pending, clOrdID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- outcome:
	default:
	}
}
