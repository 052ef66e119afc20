package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"health-telemetry/internal/models"
)

// Streamer is the slice of the Redis client the publisher needs.
type Streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisConfig selects the server and stream entries are published to.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// NewRedisClient creates a client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisPublisher appends each accepted entry to a Redis stream as JSON, so
// other services can follow the feed with XREAD or consumer groups.
type RedisPublisher struct {
	client Streamer
	stream string
	maxLen int64
	log    *zap.Logger
}

// NewRedisPublisher returns a publisher appending to stream.
func NewRedisPublisher(client Streamer, stream string, maxLen int64, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen, log: log}
}

// Write publishes e. The stream is trimmed approximately to maxLen when
// maxLen is positive.
func (p *RedisPublisher) Write(ctx context.Context, e models.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"device":    e.Device,
			"timestamp": strconv.FormatInt(e.ServerTimestamp, 10),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.log.Debug("entry published",
		zap.String("stream", p.stream),
		zap.String("stream_id", id),
	)
	return nil
}
