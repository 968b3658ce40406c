// Package security implements the per-source-IP protections a multicast
// responder needs before it acts on an inbound packet: rate limiting
// against query storms, and source-address validation against the
// link-local scope mDNS traffic is required to stay within.
package security

import (
	"sync"
	"time"
)

// RateLimitEntry tracks query rate for a single source IP.
type RateLimitEntry struct {
	windowStart    time.Time // Start of current 1-second sliding window
	cooldownExpiry time.Time // When cooldown period ends (zero if not in cooldown)
	lastSeen       time.Time // Last query received (for LRU eviction)
	sourceIP       string    // Source IP address (key in RateLimiter map)
	queryCount     int       // Number of queries in current sliding window
}

// RateLimiter manages per-source-IP rate limiting with a bounded map, so a
// single misbehaving source can't grow the tracking set without bound.
type RateLimiter struct {
	threshold     int                        // Max queries/second per source IP
	cooldown      time.Duration              // Duration to drop packets after threshold exceeded
	maxEntries    int                        // Max number of source IPs tracked
	sources       map[string]*RateLimitEntry // Source IP → RateLimitEntry
	mu            sync.RWMutex               // Protects sources map
	evictionCount uint64                     // Number of LRU evictions (for metrics)
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(threshold int, cooldown time.Duration, maxEntries int) *RateLimiter {
	return &RateLimiter{
		threshold:  threshold,
		cooldown:   cooldown,
		maxEntries: maxEntries,
		sources:    make(map[string]*RateLimitEntry),
	}
}

// Allow checks if a query from the given source IP should be allowed.
// Returns false if the source is in cooldown or exceeds the rate limit
// threshold within the current 1-second sliding window.
func (rl *RateLimiter) Allow(sourceIP string) bool {
	// Lock upgrade pattern: release the read lock before acquiring the
	// write lock below, since defer would hold both at once.
	rl.mu.RLock() // nosemgrep
	entry, exists := rl.sources[sourceIP]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		entry, exists = rl.sources[sourceIP]
		if !exists {
			rl.sources[sourceIP] = &RateLimitEntry{
				sourceIP:    sourceIP,
				queryCount:  1,
				windowStart: time.Now(),
				lastSeen:    time.Now(),
			}
			if len(rl.sources) > rl.maxEntries {
				rl.evict()
			}
			return true
		}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if !entry.cooldownExpiry.IsZero() && now.Before(entry.cooldownExpiry) {
		return false
	}

	if !entry.cooldownExpiry.IsZero() && now.After(entry.cooldownExpiry) {
		entry.queryCount = 1
		entry.windowStart = now
		entry.cooldownExpiry = time.Time{}
		entry.lastSeen = now
		return true
	}

	if now.Sub(entry.windowStart) > 1*time.Second {
		entry.queryCount = 1
		entry.windowStart = now
		entry.cooldownExpiry = time.Time{}
	} else {
		entry.queryCount++
	}

	entry.lastSeen = now

	if entry.queryCount > rl.threshold {
		entry.cooldownExpiry = now.Add(rl.cooldown)
		return false
	}

	return true
}

// evict performs LRU cleanup when the sources map exceeds maxEntries,
// removing the oldest 10% of entries by lastSeen timestamp. Must be called
// while holding rl.mu for writing.
func (rl *RateLimiter) evict() {
	evictCount := rl.maxEntries / 10
	if evictCount == 0 {
		evictCount = 1
	}

	type entryWithTime struct {
		ip       string
		lastSeen time.Time
	}

	entries := make([]entryWithTime, 0, len(rl.sources))
	for ip, entry := range rl.sources {
		entries = append(entries, entryWithTime{ip: ip, lastSeen: entry.lastSeen})
	}

	for i := 0; i < evictCount && i < len(entries); i++ {
		oldestIdx := i
		for j := i + 1; j < len(entries); j++ {
			if entries[j].lastSeen.Before(entries[oldestIdx].lastSeen) {
				oldestIdx = j
			}
		}
		entries[i], entries[oldestIdx] = entries[oldestIdx], entries[i]
	}

	evicted := 0
	for i := 0; i < evictCount && i < len(entries); i++ {
		delete(rl.sources, entries[i].ip)
		evicted++
	}

	rl.evictionCount += uint64(evicted)
}

// Cleanup removes entries that haven't been seen in the last minute.
// Transceiver does not call it; its limiter is bounded only by the
// maxEntries eviction in Allow.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	toDelete := make([]string, 0)
	for ip, entry := range rl.sources {
		if now.Sub(entry.lastSeen) > 1*time.Minute {
			toDelete = append(toDelete, ip)
		}
	}
	for _, ip := range toDelete {
		delete(rl.sources, ip)
	}
}
