package database

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bloops-games/carousing/internal/broadcast"
	"github.com/bloops-games/carousing/internal/cache"
	"github.com/bloops-games/carousing/internal/database"
	"github.com/bloops-games/carousing/internal/database/document/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Get(ctx context.Context, key string) (model.Document, error)
	Update(ctx context.Context, key string, fn UpdateFn) (model.Document, error)
	Put(ctx context.Context, key string, data []byte) (model.Document, error)
	CompareAndSwap(ctx context.Context, key string, version uint64, data []byte) (model.Document, error)
}

func newBoltStore(t *testing.T, hub *broadcast.Hub) store {
	t.Helper()

	c, err := cache.NewLRU(16)
	require.NoError(t, err)

	return New(database.NewTestDB(t), c, hub)
}

func newRedisStore(t *testing.T, hub *broadcast.Hub) store {
	t.Helper()

	addr := os.Getenv("CAROUSING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CAROUSING_TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.FlushDB(context.Background()).Err())

	return NewRedis(client, hub)
}

func TestStores(t *testing.T) {
	t.Parallel()

	for name, factory := range map[string]func(*testing.T, *broadcast.Hub) store{
		"bolt":  newBoltStore,
		"redis": newRedisStore,
	} {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Run("missing document", func(t *testing.T) {
				db := factory(t, broadcast.NewHub())
				doc, err := db.Get(context.Background(), "carousing.session")
				require.NoError(t, err)
				assert.False(t, doc.Exists())
				assert.Nil(t, []byte(doc.Data))
			})

			t.Run("update bumps version and publishes", func(t *testing.T) {
				hub := broadcast.NewHub()
				events, cancel := hub.Subscribe(4, broadcast.TopicDocument)
				defer cancel()

				db := factory(t, hub)
				ctx := context.Background()

				doc, err := db.Put(ctx, "carousing.session", []byte(`{"phase":"collecting"}`))
				require.NoError(t, err)
				assert.Equal(t, uint64(1), doc.Version)

				doc, err = db.Update(ctx, "carousing.session", func(current []byte) ([]byte, error) {
					assert.JSONEq(t, `{"phase":"collecting"}`, string(current))
					return []byte(`{"phase":"resolved"}`), nil
				})
				require.NoError(t, err)
				assert.Equal(t, uint64(2), doc.Version)

				got, err := db.Get(ctx, "carousing.session")
				require.NoError(t, err)
				assert.JSONEq(t, `{"phase":"resolved"}`, string(got.Data))

				e := <-events
				assert.Equal(t, "carousing.session", e.Key)
			})

			t.Run("nil result leaves document untouched", func(t *testing.T) {
				db := factory(t, broadcast.NewHub())
				ctx := context.Background()

				_, err := db.Put(ctx, "k", []byte(`1`))
				require.NoError(t, err)

				doc, err := db.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, nil })
				require.NoError(t, err)
				assert.Equal(t, uint64(1), doc.Version)
			})

			t.Run("fn error aborts write", func(t *testing.T) {
				db := factory(t, broadcast.NewHub())
				ctx := context.Background()
				errBoom := errors.New("boom")

				_, err := db.Put(ctx, "k", []byte(`1`))
				require.NoError(t, err)

				_, err = db.Update(ctx, "k", func([]byte) ([]byte, error) { return []byte(`2`), errBoom })
				require.ErrorIs(t, err, errBoom)

				doc, err := db.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, "1", string(doc.Data))
			})

			t.Run("compare and swap", func(t *testing.T) {
				db := factory(t, broadcast.NewHub())
				ctx := context.Background()

				_, err := db.CompareAndSwap(ctx, "k", 0, []byte(`1`))
				require.NoError(t, err)

				_, err = db.CompareAndSwap(ctx, "k", 0, []byte(`2`))
				require.ErrorIs(t, err, ErrVersionMismatch)

				doc, err := db.CompareAndSwap(ctx, "k", 1, []byte(`3`))
				require.NoError(t, err)
				assert.Equal(t, uint64(2), doc.Version)
			})
		})
	}
}

func TestBoltConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	t.Parallel()

	db := New(database.NewTestDB(t), nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Update(ctx, "counter", func(current []byte) ([]byte, error) {
				n := 0
				if current != nil {
					if err := json.Unmarshal(current, &n); err != nil {
						return nil, err
					}
				}
				return json.Marshal(n + 1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := db.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), doc.Version)
	assert.Equal(t, "20", string(doc.Data))
}

func TestBoltCacheKeepsNewestVersion(t *testing.T) {
	t.Parallel()

	c, err := cache.NewLRU(4)
	require.NoError(t, err)

	db := New(database.NewTestDB(t), c, nil)
	db.now = func() time.Time { return time.Unix(0, 0) }

	db.remember(model.Document{Key: "k", Version: 2})
	db.remember(model.Document{Key: "k", Version: 1})

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, uint64(2), v.(model.Document).Version)
}
