package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	apiErrors "crm/internal/pkg/errors"
)

const rateWindow = time.Minute

var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// Limiter counts requests per key against a per-minute limit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// MemoryLimiter is a per-process token bucket limiter.
type MemoryLimiter struct {
	store *sync.Map // map[string]*Bucket
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

type Bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

func NewMemoryLimiter() *MemoryLimiter {
	rl := &MemoryLimiter{
		store: &sync.Map{},
		now:   time.Now,
		done:  make(chan struct{}),
	}

	go rl.cleanupLoop(10 * time.Minute)

	return rl
}

func (rl *MemoryLimiter) cleanupLoop(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep(idle)
		}
	}
}

// sweep drops buckets untouched for longer than idle.
func (rl *MemoryLimiter) sweep(idle time.Duration) {
	now := rl.now()
	rl.store.Range(func(key, value interface{}) bool {
		bucket := value.(*Bucket)
		bucket.mu.Lock()
		if now.Sub(bucket.lastAccess) > idle {
			rl.store.Delete(key)
		}
		bucket.mu.Unlock()
		return true
	})
}

func (rl *MemoryLimiter) Close() error {
	rl.once.Do(func() { close(rl.done) })
	return nil
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	now := rl.now()

	val, _ := rl.store.LoadOrStore(key, &Bucket{
		tokens:     limit,
		lastRefill: now,
		lastAccess: now,
	})

	bucket := val.(*Bucket)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.lastAccess = now

	// Refill at limit tokens per window.
	elapsed := now.Sub(bucket.lastRefill)
	refillRate := float64(limit) / rateWindow.Seconds()
	refillTokens := int(elapsed.Seconds() * refillRate)

	if refillTokens > 0 {
		bucket.tokens += refillTokens
		if bucket.tokens > limit {
			bucket.tokens = limit
		}
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, nil
	}

	return false, nil
}

// RedisLimiter is a fixed window counter shared by every instance.
type RedisLimiter struct {
	redis  *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{redis: client, prefix: "rl:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	k := l.prefix + key

	// EXPIRE NX in the same transaction leaves no counter without a TTL.
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, rateWindow)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return incr.Val() <= int64(limit), nil
}

// RateLimit limits requests per client IP within scope. A limit of zero
// or less disables it. When the store fails the request is let through.
func RateLimit(l Limiter, scope string, limit int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if l == nil || limit <= 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("%s:%s", scope, ClientIP(r))

			allowed, err := l.Allow(r.Context(), key, limit)
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Str("scope", scope).Msg("rate limit check failed")
				next(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
				apiErrors.WriteError(w, http.StatusTooManyRequests, apiErrors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
