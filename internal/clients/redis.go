package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"rag-system/vectorinit/internal/config"
	"rag-system/vectorinit/internal/orchestrator"
)

const redisProbeName = "redis"

// redisStore is the interface used by RedisClient. It is implemented by the
// real go-redis client and by test doubles.
type redisStore interface {
	PingResult(ctx context.Context) (string, error)
	SetResult(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// realRedisStore wraps a *redis.Client and adapts it to redisStore so tests
// can inject a fake without constructing redis command types.
type realRedisStore struct {
	client *redis.Client
}

func (r *realRedisStore) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisStore) SetResult(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *realRedisStore) Close() error {
	return r.client.Close()
}

// RedisClient stores the latest bootstrap result under a well-known key so
// other services can check whether the database is ready.
type RedisClient struct {
	cfg   config.RedisConfig
	cb    *gobreaker.CircuitBreaker
	store redisStore
}

// NewRedisClient creates a RedisClient. No connection is opened at
// construction time; a go-redis client is built per call.
func NewRedisClient(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		cfg: cfg,
		cb:  cb,
	}
}

// open returns the injected store, or a fresh go-redis client plus its closer.
func (c *RedisClient) open() (redisStore, func()) {
	if c.store != nil {
		return c.store, func() {}
	}
	s := &realRedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     c.cfg.Addr,
			Password: c.cfg.Password,
			DB:       c.cfg.DB,
		}),
	}
	return s, func() { s.Close() } //nolint:errcheck
}

// RecordResult writes the event as JSON to the configured key with the
// configured TTL. A zero TTL keeps the key forever.
func (c *RedisClient) RecordResult(ctx context.Context, event orchestrator.BootstrapEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding bootstrap event: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		s, closeFn := c.open()
		defer closeFn()

		if err := s.SetResult(ctx, c.cfg.Key, data, c.cfg.TTL); err != nil {
			return nil, fmt.Errorf("set %s: %w", c.cfg.Key, err)
		}
		return nil, nil
	})
	return breakerError(err)
}

// Probe sends a PING command to Redis and validates the PONG response. The call
// is wrapped in the circuit breaker; after 3 consecutive failures the breaker
// opens and subsequent calls return immediately with "circuit open".
func (c *RedisClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		s, closeFn := c.open()
		defer closeFn()

		val, err := s.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()
	if err != nil {
		return failedProbe(redisProbeName, latency, err)
	}
	return orchestrator.ProbeResult{Name: redisProbeName, OK: true, LatencyMs: latency}
}
