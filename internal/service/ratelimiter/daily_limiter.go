// Package ratelimiter implements the per-caller daily request quota.
package ratelimiter

import (
	"strings"
	"sync"
	"time"
)

// DefaultDailyQuota is the number of requests a caller may make per calendar day.
const DefaultDailyQuota = 50

const dayLayout = "2006-01-02"

// DailyLimiter counts requests per (caller, calendar day) bucket in memory.
// Buckets from previous days are purged on every check; the purge is linear
// in the number of buckets. It is safe for concurrent use.
type DailyLimiter struct {
	quota   int
	mu      sync.Mutex
	buckets map[string]int
	now     func() time.Time
}

// NewDailyLimiter returns a limiter with the given quota (DefaultDailyQuota when <= 0).
func NewDailyLimiter(quota int) *DailyLimiter {
	if quota <= 0 {
		quota = DefaultDailyQuota
	}
	return &DailyLimiter{quota: quota, buckets: make(map[string]int), now: time.Now}
}

// Admit reports whether callerID is still under today's quota and, if so,
// consumes one unit. A rejected call does not change any count.
func (l *DailyLimiter) Admit(callerID string) bool {
	today := l.now().Format(dayLayout)
	key := callerID + ":" + today

	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.buckets {
		if !strings.HasSuffix(k, today) {
			delete(l.buckets, k)
		}
	}

	count := l.buckets[key]
	if count >= l.quota {
		return false
	}
	l.buckets[key] = count + 1
	return true
}

// Remaining returns how many requests callerID may still make today.
func (l *DailyLimiter) Remaining(callerID string) int {
	key := callerID + ":" + l.now().Format(dayLayout)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quota - l.buckets[key]
}

// ResetIn returns the time left until the current day rolls over.
func (l *DailyLimiter) ResetIn() time.Duration {
	now := l.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return midnight.Sub(now)
}

// Buckets returns the number of live buckets.
func (l *DailyLimiter) Buckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
