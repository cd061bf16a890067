package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bloops-games/carousing/internal/database"
	bolt "go.etcd.io/bbolt"
)

const bucket = "actors"

// New keeps actors in the node's bbolt file.
func New(db *database.DB) *DB {
	return &DB{backend: &boltBackend{sDB: db}, now: time.Now}
}

type boltBackend struct {
	sDB *database.DB
}

func (b *boltBackend) get(_ context.Context, id string) ([]byte, error) {
	var bytes []byte

	if err := b.sDB.DB.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(id)); v != nil {
			bytes = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return bytes, nil
}

func (b *boltBackend) all(_ context.Context) ([][]byte, error) {
	var list [][]byte

	if err := b.sDB.DB.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
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

func (b *boltBackend) modify(_ context.Context, id string, fn func(current []byte) ([]byte, error)) error {
	if err := b.sDB.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		next, err := fn(bkt.Get([]byte(id)))
		if err != nil {
			return err
		}

		return bkt.Put([]byte(id), next)
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}
