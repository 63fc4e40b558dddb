package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/milgram/internal/message"
)

const streamPrefix = "milgram:agent:"

// Bus mirrors routed messages onto Redis Streams, one stream per
// receiver, so external consumers can follow the conversation without
// touching the environment.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New creates a Redis-backed message bus.
func New(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Publish appends msg to the receiver's stream.
func (b *Bus) Publish(ctx context.Context, msg *message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	stream := streamPrefix + msg.Receiver
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published message",
		zap.String("sender", msg.Sender),
		zap.String("receiver", msg.Receiver))
	return nil
}

// OnMessage mirrors one routed message; failures are logged, never
// propagated, so a dead Redis cannot stall delivery.
func (b *Bus) OnMessage(msg *message.Message, delivered bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.Publish(ctx, msg); err != nil {
		b.logger.Warn("bus publish failed",
			zap.String("receiver", msg.Receiver),
			zap.Error(err))
	}
}

// Subscribe listens for messages addressed to agentName. The returned
// channel closes when ctx is cancelled. Only messages published after
// subscribing are seen.
func (b *Bus) Subscribe(ctx context.Context, agentName string) <-chan *message.Message {
	ch := make(chan *message.Message, 16)
	stream := streamPrefix + agentName

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				continue
			}

			for _, r := range results {
				for _, raw := range r.Messages {
					lastID = raw.ID
					data, ok := raw.Values["data"].(string)
					if !ok {
						continue
					}
					var msg message.Message
					if json.Unmarshal([]byte(data), &msg) == nil {
						ch <- &msg
					}
				}
			}
		}
	}()

	return ch
}

// Close releases the Redis client.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
