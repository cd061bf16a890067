package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKey        = "carousing:actors"
	redisMaxRetries = 8
)

var ErrTooManyConflicts = fmt.Errorf("actor update retries exhausted")

// NewRedis keeps actors in one redis hash so every node charges and pays the same purse.
func NewRedis(client *redis.Client) *DB {
	return &DB{backend: &redisBackend{client: client}, now: time.Now}
}

type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) get(ctx context.Context, id string) ([]byte, error) {
	bytes, err := b.client.HGet(ctx, redisKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	return bytes, nil
}

func (b *redisBackend) all(ctx context.Context) ([][]byte, error) {
	values, err := b.client.HVals(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hvals: %w", err)
	}

	list := make([][]byte, 0, len(values))
	for _, v := range values {
		list = append(list, []byte(v))
	}

	return list, nil
}

// modify watches the whole hash: a concurrent write to any actor retries the transaction.
func (b *redisBackend) modify(ctx context.Context, id string, fn func(current []byte) ([]byte, error)) error {
	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := b.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.HGet(ctx, redisKey, id).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis hget: %w", err)
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, redisKey, id, next)
				return nil
			})
			return err
		}, redisKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrTooManyConflicts
}
