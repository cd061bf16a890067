package database

import (
	"fmt"

	"github.com/bloops-games/carousing/internal/cache"
	"github.com/bloops-games/carousing/internal/database"
	bolt "go.etcd.io/bbolt"
)

func New(db *database.DB, cache cache.Cache) *DB {
	return &DB{backend: &boltBackend{sDB: db}, cache: cache}
}

type boltBackend struct {
	sDB *database.DB
}

func (b *boltBackend) get(space, key string) ([]byte, error) {
	var bytes []byte

	if err := b.sDB.DB.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(space))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(key)); v != nil {
			bytes = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return bytes, nil
}

func (b *boltBackend) all(space string) ([][]byte, error) {
	var list [][]byte

	if err := b.sDB.DB.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(space))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			list = append(list, append([]byte(nil), v...))
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return list, nil
}

func (b *boltBackend) put(space, key string, value []byte) error {
	if err := b.sDB.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(space))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		if err := bkt.Put([]byte(key), value); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}
