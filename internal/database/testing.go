package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewTestDB opens a bbolt file in a per-test temp dir and closes it on cleanup.
func NewTestDB(tb testing.TB) *DB {
	tb.Helper()

	ctx := context.Background()
	db, err := NewFromEnv(ctx, &Config{
		FilePath:    filepath.Join(tb.TempDir(), "carousing.db"),
		OpenTimeout: time.Second,
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}

	tb.Cleanup(func() {
		_ = db.Close(ctx)
	})

	return db
}

// Redis logical databases reserved per test package; packages run in parallel processes and
// each flushes only its own.
const (
	TestRedisActors = iota + 1
	TestRedisUsers
	TestRedisPresence
	TestRedisPresenceExpiry
	TestRedisPresenceShutdown
	TestRedisCluster
)

// NewTestRedis connects to CAROUSING_TEST_REDIS_ADDR, selects index and flushes it. The test is
// skipped when the variable is unset.
func NewTestRedis(tb testing.TB, index int) *redis.Client {
	tb.Helper()

	addr := os.Getenv("CAROUSING_TEST_REDIS_ADDR")
	if addr == "" {
		tb.Skip("CAROUSING_TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: index})
	tb.Cleanup(func() {
		_ = client.Close()
	})

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		tb.Fatalf("flush test redis %d: %v", index, err)
	}

	return client
}
