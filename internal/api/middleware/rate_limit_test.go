package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestMemoryLimiter_AllowAndRefill(t *testing.T) {
	rl := NewMemoryLimiter()
	defer rl.Close()

	now := time.Now()
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow(ctx, "signin:1.2.3.4", 3); !ok {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if ok, _ := rl.Allow(ctx, "signin:1.2.3.4", 3); ok {
		t.Error("Fourth request should be denied")
	}
	if ok, _ := rl.Allow(ctx, "signin:5.6.7.8", 3); !ok {
		t.Error("Other keys have their own bucket")
	}

	now = now.Add(20 * time.Second)
	if ok, _ := rl.Allow(ctx, "signin:1.2.3.4", 3); !ok {
		t.Error("Expected one token back after a third of the window")
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	rl := NewMemoryLimiter()
	defer rl.Close()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow(context.Background(), "k", 1)

	now = now.Add(11 * time.Minute)
	rl.sweep(10 * time.Minute)

	if _, ok := rl.store.Load("k"); ok {
		t.Error("Expected idle bucket to be removed")
	}
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	rl := NewRedisLimiter(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := rl.Allow(ctx, "invites:1.2.3.4", 2); err != nil || !ok {
			t.Fatalf("Request %d should be allowed (err %v)", i+1, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "invites:1.2.3.4", 2); ok {
		t.Error("Third request should be denied")
	}
	if ttl := mr.TTL("rl:invites:1.2.3.4"); ttl != time.Minute {
		t.Errorf("Expected one minute window, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	if ok, _ := rl.Allow(ctx, "invites:1.2.3.4", 2); !ok {
		t.Error("Expected a fresh window after expiry")
	}
}

func TestRedisLimiter_CounterWithoutTTLGetsExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	rl := NewRedisLimiter(client)
	ctx := context.Background()

	// A counter left over past the limit with no expiry.
	if err := mr.Set("rl:auth:5.6.7.8", "10"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	if ok, err := rl.Allow(ctx, "auth:5.6.7.8", 3); err != nil || ok {
		t.Fatalf("Expected denial over the limit, got ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("rl:auth:5.6.7.8"); ttl != time.Minute {
		t.Fatalf("Expected the counter to get a one minute TTL, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	if ok, _ := rl.Allow(ctx, "auth:5.6.7.8", 3); !ok {
		t.Error("Expected the client to be allowed once the window expires")
	}
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	rl := NewRedisLimiter(client)
	mr.Close()

	_, err := rl.Allow(context.Background(), "k", 1)
	if !errors.Is(err, ErrLimiterUnavailable) {
		t.Errorf("Expected ErrLimiterUnavailable, got %v", err)
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewMemoryLimiter()
	defer rl.Close()

	handler := RateLimit(rl, "signin", 1)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/signin", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rr.Code)
	}

	req.RemoteAddr = "10.0.0.1:6666"
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int) (bool, error) {
	return false, ErrLimiterUnavailable
}

func TestRateLimit_FailsOpen(t *testing.T) {
	handler := RateLimit(brokenLimiter{}, "signin", 1)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/signin", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected request through on limiter failure, got %d", rr.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(brokenLimiter{}, "signin", 0)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/signin", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected pass-through, got %d", rr.Code)
	}
}
