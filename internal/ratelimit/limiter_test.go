package ratelimit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(store Store) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewLimiter(store, WithClock(clock.Now)), clock
}

func TestCheckCountsDownThenDenies(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore())
	ctx := context.Background()
	start := clock.Now()

	for i := 1; i <= DefaultLimit; i++ {
		res, err := l.Check(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("call %d denied", i)
		}
		if want := DefaultLimit - i; res.Remaining != want {
			t.Errorf("call %d: remaining = %d, want %d", i, res.Remaining, want)
		}
		if !res.ResetTime.Equal(start.Add(DefaultWindow)) {
			t.Errorf("call %d: reset time moved to %v", i, res.ResetTime)
		}
		clock.Advance(time.Second)
	}

	res, err := l.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("call 11: %v", err)
	}
	if res.Allowed {
		t.Fatal("call 11 allowed, want denied")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
	if !res.ResetTime.Equal(start.Add(DefaultWindow)) {
		t.Errorf("denied reset time = %v, want %v", res.ResetTime, start.Add(DefaultWindow))
	}
}

func TestDeniedCallsDoNotIncrement(t *testing.T) {
	store := NewMemoryStore()
	l, _ := newTestLimiter(store)
	ctx := context.Background()

	for i := 0; i < DefaultLimit+5; i++ {
		_, _ = l.Check(ctx, "client")
	}

	entry, ok := store.Get("client")
	if !ok {
		t.Fatal("entry missing")
	}
	if entry.Count != DefaultLimit {
		t.Errorf("count = %d, want %d", entry.Count, DefaultLimit)
	}
}

func TestWindowResetBehavesAsFirstCall(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < DefaultLimit+1; i++ {
		_, _ = l.Check(ctx, "client")
	}

	clock.Advance(DefaultWindow)

	res, err := l.Check(ctx, "client")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Allowed || res.Remaining != DefaultLimit-1 {
		t.Errorf("after reset = %+v, want allowed with remaining %d", res, DefaultLimit-1)
	}
	if !res.ResetTime.Equal(clock.Now().Add(DefaultWindow)) {
		t.Errorf("reset time = %v, want %v", res.ResetTime, clock.Now().Add(DefaultWindow))
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < DefaultLimit; i++ {
		_, _ = l.Check(ctx, "a")
	}
	res, _ := l.Check(ctx, "b")
	if !res.Allowed || res.Remaining != DefaultLimit-1 {
		t.Errorf("b = %+v, want fresh window", res)
	}
}

func TestCheckSweepsExpiredEntries(t *testing.T) {
	store := NewMemoryStore()
	l, clock := newTestLimiter(store)
	ctx := context.Background()

	_, _ = l.Check(ctx, "a")
	_, _ = l.Check(ctx, "b")
	if store.Len() != 2 {
		t.Fatalf("len = %d, want 2", store.Len())
	}

	clock.Advance(DefaultWindow + time.Millisecond)
	_, _ = l.Check(ctx, "c")

	if store.Len() != 1 {
		t.Errorf("len after sweep = %d, want 1", store.Len())
	}
	if _, ok := store.Get("a"); ok {
		t.Error("expired entry a survived the sweep")
	}
}

func TestCustomLimitAndWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	l := NewLimiter(NewMemoryStore(), WithLimit(2), WithWindow(time.Second), WithClock(clock.Now))
	ctx := context.Background()

	if l.Limit() != 2 || l.Window() != time.Second {
		t.Fatalf("limit/window = %d/%v", l.Limit(), l.Window())
	}

	r1, _ := l.Check(ctx, "x")
	r2, _ := l.Check(ctx, "x")
	r3, _ := l.Check(ctx, "x")
	if !r1.Allowed || !r2.Allowed || r3.Allowed {
		t.Errorf("results = %v %v %v, want allowed allowed denied", r1.Allowed, r2.Allowed, r3.Allowed)
	}
	if r2.Remaining != 0 {
		t.Errorf("ceiling call remaining = %d, want 0", r2.Remaining)
	}
}

func TestConcurrentChecksDoNotLoseUpdates(t *testing.T) {
	store := NewMemoryStore()
	l := NewLimiter(store, WithLimit(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = l.Check(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	entry, _ := store.Get("shared")
	if entry.Count != 500 {
		t.Errorf("count = %d, want 500", entry.Count)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	_, _ = store.Take(context.Background(), "old", 10, time.Millisecond, time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not remove expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		reset time.Time
		want  time.Duration
	}{
		{now.Add(30 * time.Second), 30 * time.Second},
		{now.Add(1500 * time.Millisecond), 2 * time.Second},
		{now, time.Second},
		{now.Add(-time.Second), time.Second},
	}
	for _, tt := range tests {
		if got := (Result{ResetTime: tt.reset}).RetryAfter(now); got != tt.want {
			t.Errorf("RetryAfter(%v) = %v, want %v", tt.reset.Sub(now), got, tt.want)
		}
	}
}

func TestClientIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded single", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "1.2.3.4"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.1"}, "1.2.3.4"},
		{"forwarded wins over real", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"}, "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "5.6.7.8"},
		{"empty forwarded falls back", map[string]string{"X-Forwarded-For": " , 9.9.9.9", "X-Real-IP": "5.6.7.8"}, "5.6.7.8"},
		{"no headers", nil, UnknownClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIdentifier(r); got != tt.want {
				t.Errorf("ClientIdentifier = %q, want %q", got, tt.want)
			}
		})
	}
}
