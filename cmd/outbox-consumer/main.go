// Command outbox-consumer tails the roulette Kafka topics and logs each
// event. It exists as a reference consumer: downstream systems (analytics,
// compliance, bonus engines) follow the same pattern.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/spinhall/roulette/internal/infra"
)

var topics = []string{
	"roulette.wallet.transaction_posted",
	"roulette.round.round_settled",
	"roulette.round.round_aborted",
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("KAFKA_ENABLED must be true for the consumer")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, "roulette-outbox-consumer", true, logger)
		defer consumer.Close()

		topic := topic
		g.Go(func() error { return consume(gctx, consumer, topic, logger) })
	}

	logger.Info("outbox consumer started", "brokers", cfg.KafkaBrokers, "topics", topics)

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	logger.Info("outbox consumer stopped")
	return nil
}

func consume(ctx context.Context, consumer *infra.KafkaConsumer, topic string, logger *slog.Logger) error {
	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("malformed event", "topic", topic, "offset", msg.Offset, "error", err)
			continue
		}

		logger.Info("event received",
			"topic", topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"event_id", string(envelope["event_id"]),
			"event_type", string(envelope["event_type"]),
		)
	}
}
