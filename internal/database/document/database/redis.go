package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/database/document/model"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix     = "carousing:doc:"
	redisMaxRetries = 8
)

var ErrTooManyConflicts = fmt.Errorf("document update retries exhausted")

func NewRedis(client *redis.Client, publisher broadcast.Publisher) *RedisDB {
	return &RedisDB{client: client, publisher: publisher, now: time.Now}
}

// RedisDB keeps the same documents in redis for deployments running several service nodes.
// Updates use WATCH/MULTI and retry when another node wrote the key in between.
type RedisDB struct {
	client    *redis.Client
	publisher broadcast.Publisher
	now       func() time.Time
}

func (db *RedisDB) Get(ctx context.Context, key string) (model.Document, error) {
	doc := model.Document{Key: key}

	bytes, err := db.client.Get(ctx, redisPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return doc, nil
		}
		return doc, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := decode(bytes, &doc); err != nil {
		return doc, err
	}

	return doc, nil
}

func (db *RedisDB) Update(ctx context.Context, key string, fn UpdateFn) (model.Document, error) {
	return db.update(ctx, key, func(doc model.Document) ([]byte, error) {
		if !doc.Exists() {
			return fn(nil)
		}
		return fn(doc.Data)
	})
}

func (db *RedisDB) Put(ctx context.Context, key string, data []byte) (model.Document, error) {
	return db.update(ctx, key, func(model.Document) ([]byte, error) {
		return data, nil
	})
}

func (db *RedisDB) CompareAndSwap(ctx context.Context, key string, version uint64, data []byte) (model.Document, error) {
	return db.update(ctx, key, func(doc model.Document) ([]byte, error) {
		if doc.Version != version {
			return nil, ErrVersionMismatch
		}
		return data, nil
	})
}

func (db *RedisDB) update(ctx context.Context, key string, fn func(doc model.Document) ([]byte, error)) (model.Document, error) {
	logger := logging.FromContext(ctx).Named("document.RedisDB.update")
	redisKey := redisPrefix + key

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		var (
			doc     model.Document
			changed bool
		)

		err := db.client.Watch(ctx, func(tx *redis.Tx) error {
			doc = model.Document{Key: key}
			bytes, err := tx.Get(ctx, redisKey).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis get: %w", err)
			}

			if err := decode(bytes, &doc); err != nil {
				return err
			}

			next, err := fn(doc)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}

			doc.Version++
			doc.Data = next
			doc.UpdatedAt = db.now()

			encoded, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("marshal: %w", err)
			}

			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, redisKey, encoded, 0)
				return nil
			}); err != nil {
				return err
			}

			changed = true
			return nil
		}, redisKey)

		if errors.Is(err, redis.TxFailedErr) {
			logger.Debugf("conflict on %s, attempt %d", key, attempt+1)
			continue
		}
		if err != nil {
			return doc, fmt.Errorf("update %s: %w", key, err)
		}

		if changed && db.publisher != nil {
			db.publisher.Publish(broadcast.Event{Topic: broadcast.TopicDocument, Key: key})
		}

		return doc, nil
	}

	return model.Document{Key: key}, fmt.Errorf("update %s: %w", key, ErrTooManyConflicts)
}
