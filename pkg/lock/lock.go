// Package lock keeps two vtpsync runs from reconciling the same switch at
// once. Locks live in Redis as VTPSYNC_LOCK|<device> hashes with a TTL so a
// crashed run cannot hold a device forever.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/vtpsync/pkg/util"
)

// KeyPrefix is prepended to the device name to form the lock key.
const KeyPrefix = "VTPSYNC_LOCK|"

// acquireScript returns 1 on success, 0 if the key already exists.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseScript returns 1 on success, 0 on holder mismatch, -1 if the key
// is gone.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
if redis.call("HGET", key, "holder") ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Key returns the Redis key guarding device.
func Key(device string) string {
	return KeyPrefix + device
}

// Info describes a held lock.
type Info struct {
	Holder   string
	Acquired time.Time
	TTL      time.Duration
}

// RedisLocker implements per-device locks on a Redis server.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker connects to addr and checks the server answers.
func NewRedisLocker(ctx context.Context, addr string, db int) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to lock server %s: %w", addr, err)
	}
	return &RedisLocker{client: client}, nil
}

// Acquire takes the lock for device. It returns util.ErrDeviceLocked when
// any holder, including this one, already has it.
func (l *RedisLocker) Acquire(ctx context.Context, device, holder string, ttl time.Duration) error {
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireScript.Run(ctx, l.client, []string{Key(device)},
		holder, now, strconv.Itoa(secs)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("%s: %w", device, util.ErrDeviceLocked)
	}
	util.WithDevice(device).Debugf("lock acquired by %s for %ds", holder, secs)
	return nil
}

// Release drops the lock if holder owns it. A lock that already expired is
// not an error.
func (l *RedisLocker) Release(ctx context.Context, device, holder string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{Key(device)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", device, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("lock holder mismatch for %s", device)
	case -1:
		util.WithDevice(device).Debug("lock already expired")
	}
	return nil
}

// Holder returns who holds the lock on device, or nil if nobody does.
func (l *RedisLocker) Holder(ctx context.Context, device string) (*Info, error) {
	vals, err := l.client.HGetAll(ctx, Key(device)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading lock for %s: %w", device, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	info := &Info{Holder: vals["holder"]}
	info.Acquired, _ = time.Parse(time.RFC3339, vals["acquired"])
	if n, err := strconv.Atoi(vals["ttl"]); err == nil {
		info.TTL = time.Duration(n) * time.Second
	}
	return info, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
