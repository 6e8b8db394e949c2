package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
	TransportKafka     = "kafka"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel  string          `env:"LOG_LEVEL" envDefault:"info"`
	Backend   BackendConfig   `envPrefix:"BACKEND_"`
	Stream    StreamConfig    `envPrefix:"STREAM_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Dashboard DashboardConfig `envPrefix:"DASHBOARD_"`
	Console   ConsoleConfig   `envPrefix:"CONSOLE_"`
}

type BackendConfig struct {
	URL     string        `env:"URL" envDefault:"http://localhost:8000/api"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// StreamConfig selects where order events are read from.
type StreamConfig struct {
	Transport      string        `env:"TRANSPORT" envDefault:"websocket"`
	URL            string        `env:"URL" envDefault:"ws://localhost:8000/ws"`
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Channel  string `env:"CHANNEL" envDefault:"pizza_orders"`
}

// KafkaConfig covers both the order-events topic read by the kafka
// transport and the change feed topic written by the publisher.
type KafkaConfig struct {
	Brokers     []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	OrderTopic  string   `env:"ORDER_TOPIC" envDefault:"pizza_orders"`
	GroupID     string   `env:"GROUP_ID" envDefault:"ordersync"`
	ChangeFeed  bool     `env:"CHANGE_FEED" envDefault:"false"`
	ChangeTopic string   `env:"CHANGE_TOPIC" envDefault:"order_changes"`
	// ConsoleProducer prints the change feed to stdout instead of Kafka.
	ConsoleProducer bool `env:"CONSOLE_PRODUCER" envDefault:"false"`
}

type HTTPConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Addr    string `env:"ADDR" envDefault:":8080"`
}

type DashboardConfig struct {
	Interval     time.Duration `env:"INTERVAL" envDefault:"5s"`
	ResyncOrders bool          `env:"RESYNC_ORDERS" envDefault:"false"`
}

type ConsoleConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// Load reads the optional .env files and then the process environment.
func Load(files ...string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(files...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds the config from environ only.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: BACKEND_URL is empty", ErrInvalidConfig)
	}

	switch c.Stream.Transport {
	case TransportWebSocket:
		if c.Stream.URL == "" {
			return fmt.Errorf("%w: STREAM_URL is empty", ErrInvalidConfig)
		}
	case TransportRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is empty", ErrInvalidConfig)
		}
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 || strings.TrimSpace(c.Kafka.OrderTopic) == "" {
			return fmt.Errorf("%w: kafka transport needs KAFKA_BROKERS and KAFKA_ORDER_TOPIC", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown stream transport %q", ErrInvalidConfig, c.Stream.Transport)
	}

	if c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: STREAM_RECONNECT_DELAY must be positive", ErrInvalidConfig)
	}
	if c.Dashboard.Interval <= 0 {
		return fmt.Errorf("%w: DASHBOARD_INTERVAL must be positive", ErrInvalidConfig)
	}
	if c.Kafka.ChangeFeed && !c.Kafka.ConsoleProducer && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: change feed needs KAFKA_BROKERS", ErrInvalidConfig)
	}
	return nil
}
