// Package kafka publishes computed launch decisions to an audit topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/launch-advisor/internal/domain"
)

// Publisher produces one message per decision to the audit topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the audit topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger}
}

// Name identifies the sink in metrics and logs.
func (p *Publisher) Name() string { return "kafka" }

// Record publishes the decision. Messages are keyed by site so the decisions
// for one site stay ordered within a partition.
func (p *Publisher) Record(ctx context.Context, d domain.DecisionResult) error {
	msg, err := serializeToMessage(d)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish decision %s: %w", d.ID, err)
	}
	p.logger.Debug("decision published", "decision_id", d.ID, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a DecisionResult into a Kafka message.
func serializeToMessage(d domain.DecisionResult) (kafkago.Message, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize decision: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(d.SiteCode),
		Value: data,
		Time:  d.DecidedAt,
		Headers: []kafkago.Header{
			{Key: "decision_id", Value: []byte(d.ID)},
			{Key: "verdict", Value: []byte(d.Verdict)},
			{Key: "risk_score", Value: []byte(strconv.Itoa(d.RiskScore))},
			{Key: "decided_at", Value: []byte(d.DecidedAt.Format(time.RFC3339))},
		},
	}, nil
}
