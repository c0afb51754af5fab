//go:build integration

package lock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/newtron-network/vtpsync/internal/testutil"
	"github.com/newtron-network/vtpsync/pkg/lock"
	"github.com/newtron-network/vtpsync/pkg/util"
)

func newLocker(t *testing.T) *lock.RedisLocker {
	t.Helper()
	testutil.SkipIfNoRedis(t)
	testutil.FlushDB(t, testutil.RedisAddr(), testutil.LockDB)

	l, err := lock.NewRedisLocker(testutil.Context(t), testutil.RedisAddr(), testutil.LockDB)
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAcquireRelease(t *testing.T) {
	l := newLocker(t)
	ctx := testutil.Context(t)

	if err := l.Acquire(ctx, "sw1", "run-a", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	raw := testutil.ReadHash(t, testutil.RedisAddr(), testutil.LockDB, lock.Key("sw1"))
	if raw["holder"] != "run-a" || raw["ttl"] != "60" || raw["acquired"] == "" {
		t.Errorf("lock hash = %v", raw)
	}
	if ttl := testutil.TTL(t, testutil.RedisAddr(), testutil.LockDB, lock.Key("sw1")); ttl <= 0 || ttl > 60 {
		t.Errorf("TTL = %d, want (0, 60]", ttl)
	}

	info, err := l.Holder(ctx, "sw1")
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if info == nil || info.Holder != "run-a" || info.TTL != time.Minute {
		t.Errorf("Holder() = %+v", info)
	}

	for _, holder := range []string{"run-b", "run-a"} {
		if err := l.Acquire(ctx, "sw1", holder, time.Minute); !errors.Is(err, util.ErrDeviceLocked) {
			t.Errorf("Acquire(%s) error = %v, want ErrDeviceLocked", holder, err)
		}
	}
	if err := l.Acquire(ctx, "sw2", "run-b", time.Minute); err != nil {
		t.Errorf("locks are per device: %v", err)
	}

	if err := l.Release(ctx, "sw1", "run-b"); err == nil {
		t.Error("Release by a different holder should fail")
	}
	if err := l.Release(ctx, "sw1", "run-a"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if info, _ := l.Holder(ctx, "sw1"); info != nil {
		t.Errorf("lock still held: %+v", info)
	}
	if err := l.Release(ctx, "sw1", "run-a"); err != nil {
		t.Errorf("releasing a missing lock should succeed: %v", err)
	}
}

func TestLockExpires(t *testing.T) {
	l := newLocker(t)
	ctx := testutil.Context(t)

	if err := l.Acquire(ctx, "sw1", "crashed", time.Second); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if err := l.Acquire(ctx, "sw1", "next", time.Minute); err != nil {
		t.Errorf("Acquire() after expiry error = %v", err)
	}
}
