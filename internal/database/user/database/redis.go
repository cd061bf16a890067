package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix  = "carousing:"
	redisTimeout = 5 * time.Second
)

// NewRedis keeps users in redis hashes shared by every node. Lookups are not cached because
// another node may rewrite a user at any time.
func NewRedis(client *redis.Client) *DB {
	return &DB{backend: &redisBackend{client: client}}
}

type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) get(space, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	bytes, err := b.client.HGet(ctx, redisPrefix+space, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	return bytes, nil
}

func (b *redisBackend) all(space string) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	values, err := b.client.HVals(ctx, redisPrefix+space).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hvals: %w", err)
	}

	list := make([][]byte, 0, len(values))
	for _, v := range values {
		list = append(list, []byte(v))
	}

	return list, nil
}

func (b *redisBackend) put(space, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := b.client.HSet(ctx, redisPrefix+space, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}

	return nil
}
