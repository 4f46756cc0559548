package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamPrefix is prepended to the session id to name its Redis stream.
const StreamPrefix = "turnguard:audit:"

// RedisSink appends each event to a per-session Redis stream with XADD.
// Stream entry ids give per-session order.
type RedisSink struct {
	client *redis.Client
	// MaxLen caps each stream (approximate trim). Zero keeps everything.
	MaxLen int64
}

// OpenRedis connects to a redis:// URL and checks the connection.
func OpenRedis(ctx context.Context, url string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("audit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("audit: redis ping: %w", err)
	}
	return NewRedisSink(client), nil
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// StreamKey returns the stream name for a session.
func StreamKey(sessionID string) string {
	return StreamPrefix + sessionID
}

// Append writes ev as one stream entry.
func (r *RedisSink) Append(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: StreamKey(ev.SessionID),
		Values: map[string]any{
			"turn":   ev.Turn,
			"intent": ev.Intent,
			"event":  string(payload),
		},
	}
	if r.MaxLen > 0 {
		args.MaxLen = r.MaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("audit: xadd: %w", err)
	}
	return nil
}

// Session reads back every event of a session in stream order.
func (r *RedisSink) Session(ctx context.Context, sessionID string) ([]Event, error) {
	msgs, err := r.client.XRange(ctx, StreamKey(sessionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("audit: xrange: %w", err)
	}
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["event"].(string)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("audit: decode stream entry %s: %w", m.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
