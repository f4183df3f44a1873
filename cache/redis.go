package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key this service writes to Redis.
const DefaultKeyPrefix = "fixturefeed:"

// RedisOptions configures a RedisTier.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisTier is a SharedTier backed by Redis.
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier dials Redis and verifies the connection with a ping.
func NewRedisTier(ctx context.Context, opts RedisOptions) (*RedisTier, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", opts.Address, err)
	}

	return NewRedisTierFromClient(client, opts.Prefix), nil
}

// NewRedisTierFromClient wraps an existing client. An empty prefix means
// DefaultKeyPrefix.
func NewRedisTierFromClient(client *redis.Client, prefix string) *RedisTier {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisTier{client: client, prefix: prefix}
}

// Get implements SharedTier.
func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set implements SharedTier.
func (r *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %s: %w", key, err)
	}
	return nil
}

// Delete implements SharedTier.
func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache: redis delete %s: %w", key, err)
	}
	return nil
}

// Keys implements SharedTier. Returned keys have the prefix stripped.
func (r *RedisTier) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: redis scan: %w", err)
	}
	return keys, nil
}

// Clear implements SharedTier. Only prefixed keys are removed.
func (r *RedisTier) Clear(ctx context.Context) error {
	keys, err := r.Keys(ctx, "*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache: redis clear: %w", err)
	}
	return nil
}

// Ping implements SharedTier.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements SharedTier.
func (r *RedisTier) Close() error {
	return r.client.Close()
}

var _ SharedTier = (*RedisTier)(nil)
