package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is an LRU of clips bounded by total byte size.
type Memory struct {
	mu sync.Mutex

	capacity int64
	size     int64
	items    map[string]*list.Element
	order    *list.List // front is most recently used

	hits, misses, evictions int64
}

type memoryEntry struct {
	key    string
	clip   []byte
	stored time.Time
}

// NewMemory creates an empty LRU holding at most capacity bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the clip for key and marks it recently used.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, false
	}
	m.order.MoveToFront(elem)
	m.hits++
	return elem.Value.(*memoryEntry).clip, true
}

// Put stores clip under key, evicting least recently used clips to fit.
func (m *Memory) Put(key string, clip []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(clip))
	if n > m.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := m.items[key]; ok {
		m.remove(elem)
	}

	for m.size+n > m.capacity && m.order.Len() > 0 {
		m.remove(m.order.Back())
		m.evictions++
	}

	m.items[key] = m.order.PushFront(&memoryEntry{key: key, clip: clip, stored: time.Now()})
	m.size += n
	return nil
}

// Delete drops key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.remove(elem)
	}
}

// Clear drops every clip.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.size = 0
}

// Prune drops clips stored before cutoff and returns how many went.
func (m *Memory) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).stored.Before(cutoff) {
			m.remove(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

// Stats returns a snapshot of the tier's counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Level:     LevelMemory,
		Capacity:  m.capacity,
		Size:      m.size,
		Items:     len(m.items),
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
	}
}

// remove must be called with the lock held.
func (m *Memory) remove(elem *list.Element) {
	entry := m.order.Remove(elem).(*memoryEntry)
	delete(m.items, entry.key)
	m.size -= int64(len(entry.clip))
}
