package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RunResult is the one record published per compiler run to --events-topic,
// for fleet-wide build observability across many CI shards.
type RunResult struct {
	Program    string `json:"program"`
	Success    bool   `json:"success"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
	DurationMS int64  `json:"duration_ms"`
}

// Publisher publishes one RunResult per run to a Kafka topic.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher dials brokers and ensures topic exists (creating it with a
// single partition if this is the first run to ever target it), returning
// a Publisher ready for Publish.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("autopiper"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(cl)
	defer adm.Close()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// ignore "topic already exists"; any other error is surfaced by
		// the eventual ProduceSync failure instead of blocking startup.
		_ = err
	}

	return &Publisher{client: cl, topic: topic}, nil
}

// Publish sends one RunResult record, blocking until the broker acks it.
func (p *Publisher) Publish(ctx context.Context, res RunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}
	result := p.client.ProduceSync(ctx, &kgo.Record{Topic: p.topic, Value: data})
	return result.FirstErr()
}

// Close releases the underlying Kafka client.
func (p *Publisher) Close() { p.client.Close() }
