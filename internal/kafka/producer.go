package kafka

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer interface {
	SendMessage(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

// WriterProducer publishes to a Kafka cluster.
type WriterProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewWriterProducer(brokers []string, logger *zap.Logger) *WriterProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("kafka_producer")
	logger.Info("Initialized Kafka producer", zap.Strings("brokers", brokers))
	return &WriterProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (p *WriterProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to write message to topic %s: %w", topic, err)
	}
	return nil
}

func (p *WriterProducer) Close() error {
	p.logger.Info("Closing Kafka producer")
	return p.writer.Close()
}

// ConsoleProducer prints messages instead of publishing them.
type ConsoleProducer struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

func NewConsoleProducer(out io.Writer, logger *zap.Logger) *ConsoleProducer {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("console_producer")
	logger.Info("Initialized console producer")
	return &ConsoleProducer{out: out, logger: logger}
}

func (p *ConsoleProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	if err := ctx.Err(); err != nil {
		p.logger.Debug("Message cancelled", zap.String("topic", topic), zap.ByteString("key", key))
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, "\n--- CHANGE_FEED (CONSOLE) ---\nTopic: %s\nKey: %s\nValue: %s\n--- END CHANGE_FEED ---\n", topic, key, value)
	return err
}

func (p *ConsoleProducer) Close() error {
	p.logger.Info("Closing console producer")
	return nil
}
