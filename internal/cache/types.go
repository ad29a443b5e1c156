package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when a clip exceeds a tier's capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a stored clip cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies the cache tier
type Level int

const (
	// LevelMemory is the in-memory LRU
	LevelMemory Level = iota

	// LevelDisk is the persistent compressed store
	LevelDisk
)

// String returns the tier name
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds per-tier counters
type Stats struct {
	Level     Level
	Capacity  int64 // bytes
	Size      int64 // bytes currently held
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds configuration for the clip store
type Config struct {
	MemoryCapacity   int64         // L1 bytes
	DiskCapacity     int64         // L2 bytes, 0 disables the disk tier
	Dir              string        // L2 directory
	CompressionLevel int           // zstd level (1-22), 0 stores clips as-is
	TTL              time.Duration // clips older than this are swept, 0 keeps them
	SweepInterval    time.Duration // how often to sweep, 0 disables the janitor
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,  // 32MB
		DiskCapacity:     256 * 1024 * 1024, // 256MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		SweepInterval:    time.Hour,
	}
}
