package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/cache"
	"github.com/bloops-games/carousing/internal/database"
	"github.com/bloops-games/carousing/internal/database/document/model"
	"github.com/bloops-games/carousing/internal/logging"
	bolt "go.etcd.io/bbolt"
)

const bucket = "documents"

var ErrVersionMismatch = fmt.Errorf("document version mismatch")

// UpdateFn receives the current data (nil when the document does not exist) and returns the
// next data. Returning nil data with a nil error leaves the document untouched.
type UpdateFn func(current []byte) ([]byte, error)

func New(db *database.DB, cache cache.Cache, publisher broadcast.Publisher) *DB {
	return &DB{sDB: db, cache: cache, publisher: publisher, now: time.Now}
}

type DB struct {
	sDB       *database.DB
	cache     cache.Cache
	publisher broadcast.Publisher
	now       func() time.Time

	// serializes cache fills so an older read never replaces a newer committed version
	cacheMtx sync.Mutex
}

func (db *DB) Get(ctx context.Context, key string) (model.Document, error) {
	if db.cache != nil {
		if v, ok := db.cache.Get(key); ok {
			return v.(model.Document), nil
		}
	}

	doc := model.Document{Key: key}
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		return decode(b.Get([]byte(key)), &doc)
	}); err != nil {
		return doc, fmt.Errorf("view transaction error: %w", err)
	}

	if doc.Exists() {
		db.remember(doc)
	}

	logging.FromContext(ctx).Named("document.Get").Debugf("read %s v%d", key, doc.Version)

	return doc, nil
}

// Update runs fn and writes its result in one bbolt write transaction, so concurrent
// mutators serialize instead of overwriting each other.
func (db *DB) Update(ctx context.Context, key string, fn UpdateFn) (model.Document, error) {
	return db.update(ctx, key, func(doc model.Document) ([]byte, error) {
		if !doc.Exists() {
			return fn(nil)
		}
		return fn(doc.Data)
	})
}

func (db *DB) Put(ctx context.Context, key string, data []byte) (model.Document, error) {
	return db.update(ctx, key, func(model.Document) ([]byte, error) {
		return data, nil
	})
}

// CompareAndSwap writes data only when the stored version equals version.
func (db *DB) CompareAndSwap(ctx context.Context, key string, version uint64, data []byte) (model.Document, error) {
	return db.update(ctx, key, func(doc model.Document) ([]byte, error) {
		if doc.Version != version {
			return nil, ErrVersionMismatch
		}
		return data, nil
	})
}

func (db *DB) update(ctx context.Context, key string, fn func(doc model.Document) ([]byte, error)) (model.Document, error) {
	var (
		doc     = model.Document{Key: key}
		changed bool
	)

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if err := decode(b.Get([]byte(key)), &doc); err != nil {
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
		changed = true

		return put(b, doc)
	}); err != nil {
		return doc, fmt.Errorf("update %s: %w", key, err)
	}

	if changed {
		db.committed(ctx, doc)
	}

	return doc, nil
}

func (db *DB) committed(ctx context.Context, doc model.Document) {
	db.remember(doc)

	logging.FromContext(ctx).Named("document.Update").Debugf("wrote %s v%d", doc.Key, doc.Version)

	if db.publisher != nil {
		db.publisher.Publish(broadcast.Event{Topic: broadcast.TopicDocument, Key: doc.Key})
	}
}

func (db *DB) remember(doc model.Document) {
	if db.cache == nil {
		return
	}

	db.cacheMtx.Lock()
	defer db.cacheMtx.Unlock()

	if v, ok := db.cache.Get(doc.Key); ok && v.(model.Document).Version >= doc.Version {
		return
	}
	db.cache.Add(doc.Key, doc)
}

func decode(bytes []byte, doc *model.Document) error {
	if len(bytes) == 0 {
		return nil
	}

	if err := json.Unmarshal(bytes, doc); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}

	return nil
}

func put(b *bolt.Bucket, doc model.Document) error {
	bytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := b.Put([]byte(doc.Key), bytes); err != nil {
		return fmt.Errorf("put to bucket error: %w", err)
	}

	return nil
}
