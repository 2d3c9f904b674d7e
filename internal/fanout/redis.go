// Package fanout implements A4, the optional Redis Pub/Sub bridge: when
// REDIS_URL is configured, every frame C9 publishes locally is also
// published to a Redis channel so other API processes can subscribe
// without re-running the enrichment pipeline. Grounded on
// KritsadaR27-saan's cache.New()/redis.NewClient construction and
// ping-on-connect pattern, adapted from a cache client to a Pub/Sub
// publisher.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/internal/broadcast"
)

const channelName = "tram:frames"

// RedisBridge implements broadcast.Mirror by republishing every frame onto
// a Redis channel. Publish is called on the broadcaster's RLock, so it must
// never block: each call is handed to a background goroutine with its own
// bounded timeout.
type RedisBridge struct {
	client *redis.Client
	log    *zap.Logger
}

// Connect builds a RedisBridge against url and verifies connectivity with a
// Ping, mirroring the teacher's cache.New().
func Connect(ctx context.Context, url string, log *zap.Logger) (*RedisBridge, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBridge{client: client, log: log}, nil
}

// Close releases the underlying connection.
func (b *RedisBridge) Close() error {
	return b.client.Close()
}

// Publish implements broadcast.Mirror. Marshaling runs synchronously in the
// caller; the Redis round trip happens on a background goroutine, off the
// broadcaster's critical section.
func (b *RedisBridge) Publish(frame broadcast.Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		if b.log != nil {
			b.log.Error("fanout: marshal frame", zap.Error(err))
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.client.Publish(ctx, channelName, payload).Err(); err != nil {
			if b.log != nil {
				b.log.Warn("fanout: publish to redis failed", zap.Error(err))
			}
		}
	}()
}
