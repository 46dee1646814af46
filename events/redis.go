package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamClient is the slice of the redis client the sink uses.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisSink appends each event to the stream <prefix>.<type>.
type RedisSink struct {
	client StreamClient
	prefix string
}

func NewRedisSink(client StreamClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisSink(client, prefix), nil
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) Stream(t Type) string {
	return s.prefix + "." + string(t)
}

func (s *RedisSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
	}

	stream := s.Stream(e.Type)
	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"type":      string(e.Type),
			"timestamp": e.Timestamp.UnixMilli(),
			"payload":   string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
