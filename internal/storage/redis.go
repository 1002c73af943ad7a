package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores each key as a string value under a common prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix is prepended to every key.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// List uses SCAN with the glob pattern; redis glob syntax matches path.Match
// for the * and ? wildcards used here.
func (r *Redis) List(ctx context.Context, pattern string) ([]string, error) {
	var results []string
	iter := r.client.Scan(ctx, 0, r.key(pattern), 100).Iterator()
	for iter.Next(ctx) {
		results = append(results, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return results, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
