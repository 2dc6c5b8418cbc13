package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestNewRedisClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rc, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0, time.Minute)
	if err == nil {
		rc.Close()
		t.Fatalf("expected ping against a closed port to fail")
	}
}

func TestDefaultTTL(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	if rc := newRedisClient(rdb, 0); rc.ttl != 5*time.Minute {
		t.Fatalf("expected default ttl of 5m, got %v", rc.ttl)
	}
	if rc := newRedisClient(rdb, 30*time.Second); rc.ttl != 30*time.Second {
		t.Fatalf("expected configured ttl, got %v", rc.ttl)
	}
}
