package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexName = "clips.index"
	clipExt   = ".clip"

	// Clips below this size are stored uncompressed.
	minCompressSize = 1024
)

// Disk is a persistent clip store. Each clip is one file, optionally zstd
// compressed; a gob index maps keys to files and is written on Close.
type Disk struct {
	mu sync.Mutex

	dir      string
	capacity int64
	size     int64
	index    map[string]*diskEntry

	encoder *zstd.Encoder // nil when compression is off
	decoder *zstd.Decoder

	hits, misses, evictions int64
}

// diskEntry is persisted in the index, so its fields are exported.
type diskEntry struct {
	Key        string
	File       string
	Size       int64 // bytes on disk
	Stored     time.Time
	LastAccess time.Time
	Compressed bool
}

// OpenDisk opens or creates a clip store in dir.
func OpenDisk(dir string, capacity int64, compressionLevel int) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}

	var err error
	if compressionLevel > 0 {
		d.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Always able to read compressed clips written with another setting.
	d.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	if err := d.loadIndex(); err != nil {
		// Unreadable index: start empty, stale files get overwritten
		d.index = make(map[string]*diskEntry)
	}
	for key, entry := range d.index {
		if _, err := os.Stat(entry.File); err != nil {
			delete(d.index, key)
			continue
		}
		d.size += entry.Size
	}

	return d, nil
}

// Get reads and decompresses the clip for key.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.index[key]
	if !ok {
		d.misses++
		return nil, false
	}

	clip, err := d.read(entry)
	if err != nil {
		d.drop(entry)
		d.misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	d.hits++
	return clip, true
}

func (d *Disk) read(entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(entry.File)
	if err != nil {
		return nil, err
	}
	if !entry.Compressed {
		return data, nil
	}
	clip, err := d.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return clip, nil
}

// Put writes clip under key, evicting least recently used clips to fit.
func (d *Disk) Put(key string, clip []byte) error {
	data, compressed := clip, false
	if d.encoder != nil && len(clip) >= minCompressSize {
		// Keep compression only when it pays off; encoded audio often
		// does not shrink.
		if packed := d.encoder.EncodeAll(clip, nil); len(packed) < len(clip) {
			data, compressed = packed, true
		}
	}
	n := int64(len(data))

	d.mu.Lock()
	defer d.mu.Unlock()

	if n > d.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := d.index[key]; ok {
		d.drop(existing)
	}

	for d.size+n > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	file := d.path(key)
	if err := writeFileAtomic(file, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       n,
		Stored:     now,
		LastAccess: now,
		Compressed: compressed,
	}
	d.size += n
	return nil
}

// Delete removes key if present.
func (d *Disk) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.index[key]; ok {
		d.drop(entry)
	}
}

// Clear removes every clip and persists the empty index.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.index {
		d.drop(entry)
	}
	return d.saveIndex()
}

// RemoveOlderThan drops clips stored before cutoff.
func (d *Disk) RemoveOlderThan(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for _, entry := range d.index {
		if entry.Stored.Before(cutoff) {
			d.drop(entry)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the tier's counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		Level:     LevelDisk,
		Capacity:  d.capacity,
		Size:      d.size,
		Items:     len(d.index),
		Hits:      d.hits,
		Misses:    d.misses,
		Evictions: d.evictions,
	}
}

// Dir returns the store's directory.
func (d *Disk) Dir() string {
	return d.dir
}

// Close persists the index.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.encoder != nil {
		d.encoder.Close()
	}
	d.decoder.Close()
	return d.saveIndex()
}

// Private helper methods

func (d *Disk) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:16])+clipExt)
}

// drop must be called with the lock held.
func (d *Disk) drop(entry *diskEntry) {
	os.Remove(entry.File)
	d.size -= entry.Size
	delete(d.index, entry.Key)
}

// evictOldest must be called with the lock held.
func (d *Disk) evictOldest() {
	entries := make([]*diskEntry, 0, len(d.index))
	for _, entry := range d.index {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	if len(entries) > 0 {
		d.drop(entries[0])
		d.evictions++
	}
}

func (d *Disk) loadIndex() error {
	file, err := os.Open(filepath.Join(d.dir, indexName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&d.index)
}

func (d *Disk) saveIndex() error {
	path := filepath.Join(d.dir, indexName)
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(d.index)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeFileAtomic writes to a temp file, then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
