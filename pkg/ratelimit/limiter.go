// Package ratelimit paces outbound provider calls and limits inbound login
// attempts.
//
// Outbound pacing uses go.uber.org/ratelimit (leaky bucket, blocking Take).
// Inbound limiting keeps one golang.org/x/time/rate token bucket per key and
// rejects instead of blocking.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// Pacer spaces out calls. Take blocks until the next call may proceed.
type Pacer interface {
	Take() time.Time
}

// NewPacer returns a Pacer allowing perMinute calls per minute without
// bursts. perMinute <= 0 disables pacing.
func NewPacer(perMinute int) Pacer {
	if perMinute <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(perMinute, ratelimit.Per(time.Minute), ratelimit.WithoutSlack)
}

// KeyedLimiter allows up to burst requests per key at once, refilled evenly
// over window, e.g. per client IP
type KeyedLimiter struct {
	burst int
	every rate.Limit
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewKeyedLimiter allows burst requests per key per window
func NewKeyedLimiter(burst int, window time.Duration) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		burst:    burst,
		every:    rate.Every(window / time.Duration(burst)),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (kl *KeyedLimiter) limiter(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.limiters[key]
	if !ok {
		l = rate.NewLimiter(kl.every, kl.burst)
		kl.limiters[key] = l
	}
	return l
}

// Allow records a request for key and reports whether it is allowed
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.limiter(key).AllowN(kl.now(), 1)
}

// RetryAfter reports how long key has to wait for its next request
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	now := kl.now()
	r := kl.limiter(key).ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}

// Reset forgets key, e.g. after a successful login
func (kl *KeyedLimiter) Reset(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	delete(kl.limiters, key)
}

// Prune drops keys whose bucket has refilled completely
func (kl *KeyedLimiter) Prune() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	n := 0
	for key, l := range kl.limiters {
		if l.TokensAt(now) >= float64(kl.burst) {
			delete(kl.limiters, key)
			n++
		}
	}
	return n
}
