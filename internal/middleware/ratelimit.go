// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/flightscheduly/backend/internal/core"
)

// Budget is how many requests a key may spend per window, with Burst
// requests available up front.
type Budget struct {
	Requests int
	Burst    int
	Window   time.Duration
}

func PerMinute(requests, burst int) Budget {
	return Budget{Requests: requests, Burst: burst, Window: time.Minute}
}

func (b Budget) limit() redis_rate.Limit {
	return redis_rate.Limit{Rate: b.Requests, Burst: b.Burst, Period: b.Window}
}

// interval is the time it takes to earn back one request.
func (b Budget) interval() time.Duration {
	if b.Requests <= 0 {
		return b.Window
	}
	return b.Window / time.Duration(b.Requests)
}

type KeyFunc func(*http.Request) string

type RateLimitConfig struct {
	Budget  Budget
	KeyFunc KeyFunc
	Skip    func(*http.Request) bool
}

// RateLimiter counts in redis so every replica shares one budget per key.
// While redis is unreachable it keeps limiting from per-process buckets.
type RateLimiter struct {
	remote   *redis_rate.Limiter
	local    *localBuckets
	degraded atomic.Bool
	config   RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}
	if cfg.Budget.Window <= 0 {
		cfg.Budget.Window = time.Minute
	}

	return &RateLimiter{
		remote: redis_rate.NewLimiter(rdb),
		local:  newLocalBuckets(),
		config: cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.Skip != nil && rl.config.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.admit(w, r, rl.config.KeyFunc(r), rl.config.Budget) {
			next.ServeHTTP(w, r)
		}
	})
}

// admit spends one request from key's budget. When the budget is exhausted it
// writes the 429 response and returns false.
func (rl *RateLimiter) admit(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	budget Budget,
) bool {
	res := rl.take(r.Context(), key, budget)
	writeQuotaHeaders(w.Header(), res, budget)

	if res.Allowed > 0 {
		return true
	}

	retryAfter := max(int(math.Ceil(res.RetryAfter.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSONError(w, core.RateLimitedError(retryAfter))
	return false
}

func (rl *RateLimiter) take(
	ctx context.Context,
	key string,
	budget Budget,
) *redis_rate.Result {
	res, err := rl.remote.Allow(ctx, key, budget.limit())
	if err == nil {
		if rl.degraded.CompareAndSwap(true, false) {
			slog.Info("rate limiter reconnected to redis")
		}
		return res
	}

	if rl.degraded.CompareAndSwap(false, true) {
		slog.Warn("rate limiter falling back to local buckets", "error", err)
	}
	return rl.local.take(key, budget)
}

func writeQuotaHeaders(h http.Header, res *redis_rate.Result, budget Budget) {
	resetAfter := max(int(math.Ceil(res.ResetAfter.Seconds())), 0)

	h.Set("X-RateLimit-Limit", strconv.Itoa(budget.Requests))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy",
		fmt.Sprintf("%d;w=%d", budget.Requests, int(budget.Window.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", max(res.Remaining, 0), resetAfter))
}

// DefaultUserTypeBudgets gives staff more headroom than trainees.
var DefaultUserTypeBudgets = map[string]Budget{
	"Student":       PerMinute(60, 10),
	"Pilot":         PerMinute(60, 10),
	"Instructor":    PerMinute(300, 50),
	"Administrator": PerMinute(600, 100),
}

const defaultUserType = "Student"

// UserTypeRateLimiter limits authenticated callers per user id with the
// budget of the user type in their access token. Unknown types get the
// Student budget. It must run after Authenticator.
func UserTypeRateLimiter(
	rdb *redis.Client,
	budgets map[string]Budget,
) func(http.Handler) http.Handler {
	rl := NewRateLimiter(rdb, RateLimitConfig{KeyFunc: KeyByUser})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userType := GetUserType(r.Context())
			budget, ok := budgets[userType]
			if !ok {
				userType = defaultUserType
				budget = budgets[defaultUserType]
			}

			w.Header().Set("X-RateLimit-User-Type", userType)
			if rl.admit(w, r, KeyByUser(r), budget) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// KeyByIP keys on the peer address. Forwarded headers only count once
// RealIP has vetted them against the trusted proxy list.
func KeyByIP(r *http.Request) string {
	return "limit:ip:" + clientIP(r)
}

func KeyByUser(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "limit:user:" + userID
	}
	return KeyByIP(r)
}

// KeyByIPAndEndpoint gives each credential endpoint its own budget so that
// hammering login does not eat into the same caller's refresh budget.
func KeyByIPAndEndpoint(r *http.Request) string {
	return KeyByIP(r) + ":" + routeShape(r.URL.Path)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// routeShape replaces ids in a path so /user/<uuid> shares one key.
func routeShape(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if _, err := uuid.Parse(seg); err == nil && len(seg) == 36 {
			segments[i] = "{id}"
			continue
		}
		if _, err := strconv.ParseUint(seg, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return "/" + strings.Join(segments, "/")
}

const (
	bucketIdleTTL = 10 * time.Minute
	sweepEvery    = time.Minute
)

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// localBuckets is the in-process token bucket store used during redis
// outages. Idle buckets are dropped lazily on access.
type localBuckets struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

func newLocalBuckets() *localBuckets {
	return &localBuckets{
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *localBuckets) take(key string, budget Budget) *redis_rate.Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > bucketIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	interval := budget.interval()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(interval), budget.Burst)}
		l.buckets[key] = b
	}
	b.seen = now

	res := &redis_rate.Result{
		Limit:      budget.limit(),
		RetryAfter: -1,
		ResetAfter: interval,
	}
	if b.limiter.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	res.Remaining = max(int(b.limiter.TokensAt(now)), 0)

	return res
}

func (l *localBuckets) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
