// Package orderevent publishes submission outcomes to kafka for the audit
// trail. Publishing is fire and forget: a broker outage is logged and the
// ticket outcome is never affected.
package orderevent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kafkawrapper "github.com/joripage/orderentry-dev/pkg/kafka_wrapper"
	"github.com/joripage/orderentry-dev/pkg/ticket"
)

const DefaultTopic = "order-entry-events"

const (
	EventOrderAccepted = "ACCEPTED"
	EventOrderRejected = "REJECTED"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Event is the wire form of one settled submission attempt.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	TicketID string    `json:"ticket_id"`
	Asset    string    `json:"asset"`
	Side     string    `json:"side"`
	Quantity string    `json:"quantity"`
	Price    string    `json:"price"`
	Notional string    `json:"notional"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

type Publisher struct {
	producer *kafkawrapper.Producer
	topic    string
}

func NewPublisher(cfg Config) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		producer: kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{Brokers: cfg.Brokers}),
		topic:    topic,
	}
}

func eventFromRecord(rec ticket.SubmissionRecord) Event {
	typ := EventOrderRejected
	if rec.Accepted {
		typ = EventOrderAccepted
	}
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		TicketID: rec.TicketID,
		Asset:    rec.Asset,
		Side:     string(rec.Side),
		Quantity: rec.Quantity,
		Price:    rec.Price,
		Notional: rec.Notional,
		Message:  rec.Message,
		At:       rec.At,
	}
}

// RecordSubmission implements ticket.Recorder. Events for the same ticket
// share a partition key so the audit topic preserves per ticket order.
func (p *Publisher) RecordSubmission(ctx context.Context, rec ticket.SubmissionRecord) {
	if p == nil || p.producer == nil {
		return
	}
	ev := eventFromRecord(rec)
	if err := p.producer.PublishJSON(ctx, p.topic, rec.TicketID, ev); err != nil {
		zap.S().Warnf("publish order event: %v", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
