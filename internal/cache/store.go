package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store coordinates the memory and disk tiers. Disk hits are promoted to
// memory; writes go to both tiers.
type Store struct {
	memory *Memory
	disk   *Disk // nil when the disk tier is disabled
	config Config
	logger *log.Logger

	// Janitor goroutine control
	stop chan struct{}
	wg   sync.WaitGroup

	mu         sync.Mutex
	promotions int64
	sweeps     int64
	lastSweep  time.Time
}

// Summary aggregates statistics from all tiers.
type Summary struct {
	Memory     Stats
	Disk       *Stats
	Promotions int64
	Sweeps     int64
	LastSweep  time.Time
}

// Open creates the store, opening the disk tier when configured.
func Open(config Config, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if config.MemoryCapacity <= 0 {
		return nil, errors.New("memory capacity must be positive")
	}

	s := &Store{
		memory: NewMemory(config.MemoryCapacity),
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
	}

	if config.DiskCapacity > 0 {
		if config.Dir == "" {
			return nil, errors.New("cache directory is required for the disk tier")
		}
		disk, err := OpenDisk(config.Dir, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk cache: %w", err)
		}
		s.disk = disk
	}

	if config.SweepInterval > 0 && config.TTL > 0 {
		s.wg.Add(1)
		go s.janitor()
	}

	return s, nil
}

// Get looks key up in memory, then on disk.
func (s *Store) Get(key string) ([]byte, Level, bool) {
	if clip, ok := s.memory.Get(key); ok {
		return clip, LevelMemory, true
	}

	if s.disk == nil {
		return nil, LevelMemory, false
	}

	clip, ok := s.disk.Get(key)
	if !ok {
		return nil, LevelDisk, false
	}

	// Promotion is best-effort
	if err := s.memory.Put(key, clip); err == nil {
		s.mu.Lock()
		s.promotions++
		s.mu.Unlock()
	}
	return clip, LevelDisk, true
}

// Put stores clip in every tier that can hold it.
func (s *Store) Put(key string, clip []byte) error {
	if err := s.memory.Put(key, clip); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if s.disk != nil {
		if err := s.disk.Put(key, clip); err != nil && !errors.Is(err, ErrItemTooLarge) {
			return fmt.Errorf("disk cache: %w", err)
		}
	}
	return nil
}

// Delete removes key from every tier.
func (s *Store) Delete(key string) {
	s.memory.Delete(key)
	if s.disk != nil {
		s.disk.Delete(key)
	}
}

// Clear empties every tier.
func (s *Store) Clear() error {
	s.memory.Clear()
	if s.disk != nil {
		if err := s.disk.Clear(); err != nil {
			return fmt.Errorf("disk cache: %w", err)
		}
	}
	return nil
}

// Sweep drops clips older than the configured TTL.
func (s *Store) Sweep() int {
	if s.config.TTL <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-s.config.TTL)
	removed := s.memory.Prune(cutoff)
	if s.disk != nil {
		removed += s.disk.RemoveOlderThan(cutoff)
	}

	s.mu.Lock()
	s.sweeps++
	s.lastSweep = time.Now()
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("cache sweep", "removed", removed, "ttl", s.config.TTL)
	}
	return removed
}

// Stats returns aggregated statistics.
func (s *Store) Stats() Summary {
	s.mu.Lock()
	summary := Summary{
		Promotions: s.promotions,
		Sweeps:     s.sweeps,
		LastSweep:  s.lastSweep,
	}
	s.mu.Unlock()

	summary.Memory = s.memory.Stats()
	if s.disk != nil {
		disk := s.disk.Stats()
		summary.Disk = &disk
	}
	return summary
}

// Dir returns the disk tier directory, or "" when there is none.
func (s *Store) Dir() string {
	if s.disk == nil {
		return ""
	}
	return s.disk.Dir()
}

// Close stops the janitor and persists the disk index.
func (s *Store) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	s.wg.Wait()

	if s.disk != nil {
		if err := s.disk.Close(); err != nil {
			return fmt.Errorf("failed to close disk cache: %w", err)
		}
	}
	return nil
}

func (s *Store) janitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}
