package cache

import (
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when an item is not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheExpired is returned when an item is older than the TTL.
	ErrCacheExpired = errors.New("cache entry expired")

	// ErrCacheCorrupted is returned when cache data cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Stats holds cache metrics.
type Stats struct {
	Hits       int64
	Misses     int64
	Writes     int64
	LastAccess time.Time
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}
