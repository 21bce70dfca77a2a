// Package middleware holds request guards shared by the update handlers.
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an idle user's limiter is kept.
const DefaultIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per Telegram user.
type RateLimiter struct {
	mu        sync.Mutex
	limits    map[int64]*visitor
	every     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per user per minute, with the same
// burst.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	return &RateLimiter{
		limits:  make(map[int64]*visitor),
		every:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: DefaultIdleTTL,
		now:     time.Now,
	}
}

// getLimiter gets or creates the limiter for userID.
func (rl *RateLimiter) getLimiter(userID int64, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweep(now)
		rl.lastSweep = now
	}

	if v, ok := rl.limits[userID]; ok {
		v.lastSeen = now
		return v.limiter
	}
	l := rate.NewLimiter(rl.every, rl.burst)
	rl.limits[userID] = &visitor{limiter: l, lastSeen: now}
	return l
}

// Allow reports whether userID may make a request now.
func (rl *RateLimiter) Allow(userID int64) bool {
	now := rl.now()
	return rl.getLimiter(userID, now).AllowN(now, 1)
}

// sweep drops limiters idle for longer than idleTTL. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) int {
	removed := 0
	for id, v := range rl.limits {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.limits, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}
