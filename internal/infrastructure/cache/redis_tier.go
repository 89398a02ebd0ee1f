package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings of the shared tier
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// RedisTier stores reference bundles in Redis under a key prefix.
type RedisTier struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
}

// NewRedisTier connects to Redis and verifies the connection.
func NewRedisTier(ctx context.Context, cfg RedisConfig) (*RedisTier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisTier{client: client, ownsClient: true, prefix: cfg.Prefix}, nil
}

// NewRedisTierWithClient wraps an existing client. The caller keeps ownership.
func NewRedisTierWithClient(client *redis.Client, prefix string) *RedisTier {
	return &RedisTier{client: client, prefix: prefix}
}

func (t *RedisTier) key(k string) string {
	return t.prefix + k
}

// Get implements Tier
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := t.client.Get(ctx, t.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.key(key), err)
	}
	return raw, nil
}

// Set implements Tier
func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.client.Set(ctx, t.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.key(key), err)
	}
	return nil
}

// Delete implements Tier
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", t.key(key), err)
	}
	return nil
}

// Close closes the client if the tier created it.
func (t *RedisTier) Close() error {
	if !t.ownsClient {
		return nil
	}
	return t.client.Close()
}
