// Package notify publishes change notices for committed sync mutations.
//
// Other processes (a websocket fan-out, a reminder scheduler) subscribe to
// the channel and pull from the sync API when a notice arrives. Notices are
// hints: they carry ids, never event content.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/daviddao/calsync/pkg/engine"
)

// Notice is the message published for one committed change.
type Notice struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	IDs       []string  `json:"ids"`
	Count     int       `json:"count"`
	Watermark int64     `json:"watermark"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNotice builds the notice for c.
func NewNotice(c engine.Change) Notice {
	return Notice{
		ID:        uuid.New().String(),
		Kind:      c.Kind,
		IDs:       c.IDs,
		Count:     c.Count,
		Watermark: c.At,
		Timestamp: time.Now().UTC(),
	}
}

// RedisPublisher publishes notices on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// Compile-time check that RedisPublisher is a ChangeNotifier.
var _ engine.ChangeNotifier = (*RedisPublisher)(nil)

// NewRedisPublisher parses url and returns a publisher on channel. It does
// not connect; use Ping to check reachability.
func NewRedisPublisher(url, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisPublisher{client: redis.NewClient(opts), channel: channel}, nil
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Notify publishes the notice for c.
func (p *RedisPublisher) Notify(ctx context.Context, c engine.Change) error {
	payload, err := json.Marshal(NewNotice(c))
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error { return p.client.Close() }
