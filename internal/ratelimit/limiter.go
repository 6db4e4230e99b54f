// Package ratelimit enforces hourly and daily request quotas
package ratelimit

import (
	"sync"
	"time"
)

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal Level = "global"
	LevelClient Level = "client"
)

// pruneThreshold is the counter count above which expired clients are dropped
const pruneThreshold = 1024

// Config contains rate limit configuration. A nil limit is not enforced.
type Config struct {
	Global    *LimitConfig
	PerClient *LimitConfig
}

// LimitConfig contains rate limit values. Zero means unlimited.
type LimitConfig struct {
	RequestsPerHour int
	RequestsPerDay  int
}

// Counter tracks the requests seen in the current windows
type Counter struct {
	HourlyCount int
	DailyCount  int
	HourStart   time.Time
	DayStart    time.Time
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Stats contains rate limit statistics
type Stats struct {
	Level       Level
	Key         string
	HourlyCount int
	DailyCount  int
}

// Limiter counts requests per client and for the whole server
type Limiter struct {
	config   Config
	counters map[string]*Counter
	mu       sync.Mutex
	now      func() time.Time
}

// NewLimiter creates a new rate limiter
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		config:   cfg,
		counters: make(map[string]*Counter),
		now:      time.Now,
	}
}

// Enabled reports whether any limit is configured
func (l *Limiter) Enabled() bool {
	return l != nil && (l.config.Global != nil || l.config.PerClient != nil)
}

// Allow checks whether client may make another request and counts it if so.
// A denied request is not counted.
func (l *Limiter) Allow(client string) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.getChecks(client)

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpiredCounters(counter, now)

		if check.limit.RequestsPerHour > 0 && counter.HourlyCount >= check.limit.RequestsPerHour {
			return Result{
				DeniedBy:   check.level,
				DeniedKey:  check.key,
				RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
			}
		}
		if check.limit.RequestsPerDay > 0 && counter.DailyCount >= check.limit.RequestsPerDay {
			return Result{
				DeniedBy:   check.level,
				DeniedKey:  check.key,
				RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
			}
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
	}

	if len(l.counters) > pruneThreshold {
		l.prune(now)
	}

	return Result{Allowed: true}
}

// GetStats returns the current counts for a key
func (l *Limiter) GetStats(level Level, key string) Stats {
	stats := Stats{Level: level, Key: key}
	if l == nil {
		return stats
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	counter, exists := l.counters[makeKey(level, key)]
	if !exists {
		return stats
	}

	now := l.now()
	if now.Sub(counter.HourStart) < time.Hour {
		stats.HourlyCount = counter.HourlyCount
	}
	if now.Sub(counter.DayStart) < 24*time.Hour {
		stats.DailyCount = counter.DailyCount
	}
	return stats
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(client string) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if client != "" && l.config.PerClient != nil {
		checks = append(checks, limitCheck{
			level: LevelClient,
			key:   makeKey(LevelClient, client),
			limit: l.config.PerClient,
		})
	}

	return checks
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			HourStart: now,
			DayStart:  now,
		}
		l.counters[key] = counter
	}
	return counter
}

// prune drops counters whose daily window has ended
func (l *Limiter) prune(now time.Time) {
	for key, counter := range l.counters {
		if now.Sub(counter.DayStart) >= 24*time.Hour {
			delete(l.counters, key)
		}
	}
}

func resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
