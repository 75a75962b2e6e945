// Package producer publishes payment events to Kafka.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "fxsettle/pkg/platform/audit"
)

// Producer is a synchronous, all-acks Kafka producer for one topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// New connects to brokers. Records default to topic.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// message is the wire form of a payment event.
type message struct {
	ID            string `json:"id"`
	Sequence      int64  `json:"sequence"`
	Type          string `json:"type"`
	Category      string `json:"category"`
	OccurredAt    string `json:"occurred_at"`
	PaymentID     string `json:"payment_id"`
	Payer         string `json:"payer,omitempty"`
	Payee         string `json:"payee,omitempty"`
	SettledAmount string `json:"settled_amount,omitempty"`
	Rate          string `json:"rate,omitempty"`
	Remainder     string `json:"remainder,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
}

// Encode renders an event as the JSON published to the topic.
func Encode(e audit.Event) ([]byte, error) {
	return json.Marshal(message{
		ID:            e.ID.String(),
		Sequence:      e.Sequence,
		Type:          e.Action,
		Category:      string(e.Category),
		OccurredAt:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		PaymentID:     string(e.PaymentID),
		Payer:         string(e.Payer),
		Payee:         string(e.Payee),
		SettledAmount: e.SettledAmount,
		Rate:          e.Rate,
		Remainder:     e.Remainder,
		RequestID:     e.RequestID,
		ActorID:       string(e.ActorID),
	})
}

// Publish produces the batch keyed by payment id so a payment's events stay
// ordered within a partition. It returns the first produce error.
func (p *Producer) Publish(ctx context.Context, events []audit.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		value, err := Encode(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(e.PaymentID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.Action)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		})
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce events: %w", err)
	}
	return nil
}

// Health pings the cluster.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}
