package audit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStreamKey(t *testing.T) {
	if got := StreamKey("abc"); got != "turnguard:audit:abc" {
		t.Errorf("StreamKey = %q", got)
	}
}

func TestRedisSinkUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedisSink(client)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Append(ctx, testEvent("start")); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestOpenRedisBadURL(t *testing.T) {
	if _, err := OpenRedis(context.Background(), "redis://localhost:6379/notadb"); err == nil {
		t.Fatal("expected parse error")
	}
}
