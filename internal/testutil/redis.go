//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// FlushDB empties one Redis database.
func FlushDB(t *testing.T, addr string, db int) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// ReadHash reads a hash from one Redis database.
func ReadHash(t *testing.T, addr string, db int, key string) map[string]string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	vals, err := client.HGetAll(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return vals
}

// TTL returns the remaining lifetime of key in seconds.
func TTL(t *testing.T, addr string, db int, key string) int {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	d, err := client.TTL(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading TTL of %s: %v", key, err)
	}
	return int(d.Seconds())
}
