package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/latex2image/internal/config"
	"github.com/aliskhannn/latex2image/internal/model"
)

// Producer publishes conversion outcome events to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy
func New(
	cfg *config.Kafka,
	s retry.Strategy,
) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Produce serializes the job record to JSON and sends it to Kafka.
// The job ID is used as the message key.
func (p *Producer) Produce(ctx context.Context, rec model.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	if err = p.Client.SendWithRetry(ctx, p.strategy, []byte(rec.ID), data); err != nil {
		return fmt.Errorf("failed to send job record: %w", err)
	}

	return nil
}

// Record implements the orchestrator's recorder.
func (p *Producer) Record(ctx context.Context, rec model.JobRecord) error {
	return p.Produce(ctx, rec)
}
