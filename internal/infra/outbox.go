package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spinhall/roulette/internal/repository"
)

// OutboxPoller drains the event_outbox table into Kafka. Events are staged in
// the same database transaction as the writes that produced them, so the
// stream is complete even when Kafka was down at write time.
type OutboxPoller struct {
	pool      *pgxpool.Pool
	repo      repository.OutboxRepository
	producer  *KafkaProducer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, repo repository.OutboxRepository, producer *KafkaProducer, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		pool:      pool,
		repo:      repo,
		producer:  producer,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) error {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

func (p *OutboxPoller) poll(ctx context.Context) error {
	drafts, err := p.repo.FetchUnpublished(ctx, p.pool, p.batchSize)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		return nil
	}

	var published []int64
	for _, d := range drafts {
		topic := "roulette." + d.AggregateType + "." + d.EventType
		msg, _ := json.Marshal(map[string]interface{}{
			"event_id":       d.EventID,
			"aggregate_type": d.AggregateType,
			"aggregate_id":   d.AggregateID,
			"event_type":     d.EventType,
			"payload":        d.Payload,
			"occurred_at":    d.OccurredAt,
		})

		if err := p.producer.Publish(ctx, topic, []byte(d.AggregateID), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", d.EventID, "error", err)
			continue
		}
		published = append(published, d.SeqID)
	}

	if err := p.repo.MarkPublished(ctx, p.pool, published); err != nil {
		return err
	}

	p.logger.Debug("outbox poll complete", "published", len(published))
	return nil
}
