//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// LockDB is the Redis database integration tests keep locks in.
const LockDB = 15

// RedisAddr returns the test Redis address from VTPSYNC_TEST_REDIS, or ""
// when integration tests should not touch Redis.
func RedisAddr() string {
	return os.Getenv("VTPSYNC_TEST_REDIS")
}

// SkipIfNoRedis skips the test unless the test Redis answers a ping.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("VTPSYNC_TEST_REDIS not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// Context returns a context with a test-sized timeout, cancelled on cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
