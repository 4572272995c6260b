package security

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxEntries is the number of identifiers a RateLimiter tracks before
// evicting the least recently used one
const DefaultMaxEntries = 10000

type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
}

// RateLimiter is a per-identifier token bucket with LRU eviction.
// It is used to throttle security event logging (code replay storms and
// repeated client authentication failures) so that an attacker cannot flood
// the logs. It starts no goroutines.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element
	lru        *list.List
	limit      rate.Limit
	burst      int
	maxEntries int

	evictions int64
}

// NewRateLimiter allows burst events immediately and then one event per interval, per identifier.
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	return NewRateLimiterWithMaxEntries(interval, burst, DefaultMaxEntries)
}

// NewRateLimiterWithMaxEntries is NewRateLimiter with a custom LRU size.
// maxEntries <= 0 falls back to DefaultMaxEntries.
func NewRateLimiterWithMaxEntries(interval time.Duration, burst, maxEntries int) *RateLimiter {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		limiters:   make(map[string]*list.Element),
		lru:        list.New(),
		limit:      limit,
		burst:      burst,
		maxEntries: maxEntries,
	}
}

// Allow reports whether an event for identifier may be recorded now.
// A nil RateLimiter allows everything.
func (rl *RateLimiter) Allow(identifier string) bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.limiters[identifier]; ok {
		rl.lru.MoveToFront(elem)
		return elem.Value.(*limiterEntry).limiter.Allow()
	}

	if len(rl.limiters) >= rl.maxEntries {
		if oldest := rl.lru.Back(); oldest != nil {
			delete(rl.limiters, oldest.Value.(*limiterEntry).identifier)
			rl.lru.Remove(oldest)
			rl.evictions++
		}
	}

	entry := &limiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
	}
	rl.limiters[identifier] = rl.lru.PushFront(entry)
	return entry.limiter.Allow()
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return Stats{
		CurrentEntries: len(rl.limiters),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
	}
}
