package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimitMaxEntries bounds the number of identifiers tracked at once
	DefaultRateLimitMaxEntries = 10000

	rateLimitCleanupInterval = 5 * time.Minute
	rateLimitMaxIdle         = 30 * time.Minute
)

// RateLimitConfig configures a RateLimiter
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per identifier
	RequestsPerSecond float64

	// Burst is the bucket size per identifier
	Burst int

	// MaxEntries caps tracked identifiers; least recently used are evicted.
	// 0 means DefaultRateLimitMaxEntries.
	MaxEntries int
}

// limiterEntry is one identifier's bucket in the LRU list
type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier token bucket rate limiting with LRU eviction.
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used
	limit    rate.Limit
	burst    int
	maxSize  int
	logger   *slog.Logger
	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its idle cleanup goroutine.
// Call Stop when done.
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultRateLimitMaxEntries
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	rl := &RateLimiter{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		limit:   rate.Limit(config.RequestsPerSecond),
		burst:   config.Burst,
		maxSize: config.MaxEntries,
		logger:  logger,
		stop:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from identifier may proceed
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.AllowN(now, 1)
	}

	if len(rl.entries) >= rl.maxSize {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	}
	rl.entries[identifier] = rl.lru.PushFront(entry)

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked identifiers
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// evictOldest drops the least recently used identifier. Caller holds rl.mu.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*limiterEntry)
	delete(rl.entries, entry.identifier)
	rl.lru.Remove(elem)

	rl.logger.Debug("Rate limiter evicted identifier", "current_entries", len(rl.entries))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rateLimitMaxIdle)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup removes identifiers idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0

	// Walk from the back: entries are ordered by last access
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if entry.lastAccess.After(cutoff) {
			break
		}
		prev := elem.Prev()
		delete(rl.entries, entry.identifier)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed", "removed", removed, "remaining", len(rl.entries))
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
