// Package bus publishes thread lifecycle events over Redis Streams so
// gateways and UIs can follow builder progress without polling.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamPrefix = "smith:thread:"

// Event names published by the builder.
const (
	EventConfigUpdated = "config_updated"
	EventAgentBuilt    = "agent_built"
	EventInterrupt     = "interrupt"
	EventTurnCompleted = "turn_completed"
)

// ThreadEvent is one entry on a thread's event stream.
type ThreadEvent struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventBus is a Redis Streams event bus with one stream per thread.
type EventBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to the thread's stream.
func (b *EventBus) Publish(ctx context.Context, threadID, event string, payload map[string]any) error {
	ev := ThreadEvent{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + threadID
	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published thread event",
		zap.String("thread", threadID),
		zap.String("event", event))
	return nil
}

// Subscribe follows a thread's event stream from now on. Cancel the context
// to stop; the returned channel closes when the subscription ends.
func (b *EventBus) Subscribe(ctx context.Context, threadID string) <-chan *ThreadEvent {
	ch := make(chan *ThreadEvent, 16)
	stream := streamPrefix + threadID

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
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev ThreadEvent
					if json.Unmarshal([]byte(data), &ev) == nil {
						select {
						case ch <- &ev:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *EventBus) Close() error {
	return b.rdb.Close()
}
