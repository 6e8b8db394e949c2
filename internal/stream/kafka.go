package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaDialer reads order events from a Kafka topic.
type KafkaDialer struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (d *KafkaDialer) Dial(ctx context.Context) (Conn, error) {
	if len(d.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	probe, err := kafka.DialContext(ctx, "tcp", d.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to reach kafka broker %s: %w", d.Brokers[0], err)
	}
	_ = probe.Close()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        d.Brokers,
		GroupID:        d.GroupID,
		Topic:          d.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	return &kafkaConn{reader: r}, nil
}

type kafkaConn struct {
	reader *kafka.Reader
}

func (c *kafkaConn) ReadMessage(ctx context.Context) ([]byte, error) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return m.Value, nil
}

func (c *kafkaConn) Close() error {
	return c.reader.Close()
}
