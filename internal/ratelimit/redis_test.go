package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func TestRedisStoreFixedWindow(t *testing.T) {
	store, _ := newRedisStore(t)
	l := NewLimiter(store)
	ctx := context.Background()

	for i := 1; i <= DefaultLimit; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !res.Allowed || res.Remaining != DefaultLimit-i {
			t.Fatalf("call %d = %+v, want allowed with remaining %d", i, res, DefaultLimit-i)
		}
	}

	res, err := l.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("call 11: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Errorf("call 11 = %+v, want denied", res)
	}
}

func TestRedisStoreDoesNotIncrementPastCeiling(t *testing.T) {
	store, mr := newRedisStore(t)
	l := NewLimiter(store, WithLimit(3))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, _ = l.Check(ctx, "client")
	}

	got, err := mr.Get(defaultKeyPrefix + "client")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "3" {
		t.Errorf("stored count = %s, want 3", got)
	}
}

func TestRedisStoreWindowExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	l := NewLimiter(store, WithLimit(1))
	ctx := context.Background()

	first, _ := l.Check(ctx, "client")
	if !first.Allowed {
		t.Fatal("first call denied")
	}
	if denied, _ := l.Check(ctx, "client"); denied.Allowed {
		t.Fatal("second call allowed")
	}

	ttl := mr.TTL(defaultKeyPrefix + "client")
	if ttl <= 0 || ttl > DefaultWindow {
		t.Errorf("ttl = %v, want within (0, %v]", ttl, DefaultWindow)
	}

	mr.FastForward(DefaultWindow + time.Second)

	res, err := l.Check(ctx, "client")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed || res.Remaining != 0 {
		t.Errorf("after expiry = %+v, want fresh allowed call", res)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	if _, err := store.Take(context.Background(), "client", 10, time.Minute, time.Now()); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}
