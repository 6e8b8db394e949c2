package stream

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "pizza_orders"

// RedisDialer subscribes directly to the pub/sub channel the backend
// publishes order events on.
type RedisDialer struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisDialer(client redis.UniversalClient, channel string) *RedisDialer {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisDialer{client: client, channel: channel}
}

func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	pubSub := d.client.Subscribe(ctx, d.channel)
	if _, err := pubSub.Receive(ctx); err != nil {
		_ = pubSub.Close()
		return nil, fmt.Errorf("failed to subscribe to redis channel %s: %w", d.channel, err)
	}
	return &redisConn{pubSub: pubSub}, nil
}

type redisConn struct {
	pubSub *redis.PubSub
}

func (c *redisConn) ReadMessage(ctx context.Context) ([]byte, error) {
	msg, err := c.pubSub.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (c *redisConn) Close() error {
	return c.pubSub.Close()
}
