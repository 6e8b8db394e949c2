package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/logger"
)

const groupID = "ordersync-feed-consumer"

// feed-consumer tails the change feed topic and prints every record.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Logger init error:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting change feed consumer")

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        groupID,
		Topic:          cfg.Kafka.ChangeTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		log.Info("Closing Kafka reader")
		if err := r.Close(); err != nil {
			log.Error("Error closing Kafka reader", zap.Error(err))
		}
	}()

	log.Info("Consumer connected",
		zap.String("topic", cfg.Kafka.ChangeTopic),
		zap.Strings("brokers", cfg.Kafka.Brokers),
	)

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("Shutdown signal received, stopping consumer")
				return
			}
			log.Error("Error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		rec, err := kafka.DecodeChange(m.Value)
		if err != nil {
			log.Warn("Skipping undecodable change record", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}

		fmt.Printf("\n--- CHANGE_FEED ---\n")
		fmt.Printf("Timestamp: %s\n", m.Time.Format(time.RFC3339))
		fmt.Printf("Partition: %d\n", m.Partition)
		fmt.Printf("Offset:    %d\n", m.Offset)
		fmt.Printf("Order:     %s\n", string(m.Key))
		fmt.Printf("Change:    %s via %s, %s -> %s\n", rec.Outcome, rec.Source, rec.EventType, rec.Order.Status)
		fmt.Println("--- END CHANGE_FEED ---")
	}
}
