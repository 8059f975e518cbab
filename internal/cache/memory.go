package cache

import (
	"sync"
	"time"
)

// memoryTier is the fast in-memory cache tier. A single mutex guards
// all access; eviction is strict LRU by LastAccessedAt.
type memoryTier struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
}

func newMemoryTier(maxEntries int) *memoryTier {
	return &memoryTier{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

// get returns the entry and refreshes its access bookkeeping.
func (m *memoryTier) get(key string, now time.Time) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	entry.LastAccessedAt = now
	entry.AccessCount++
	return entry.clone(), true
}

// peek returns the entry without touching access bookkeeping.
func (m *memoryTier) peek(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// put inserts or replaces an entry, evicting the least-recently
// accessed entry when the tier is over capacity.
func (m *memoryTier) put(entry *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Key] = entry.clone()

	for len(m.entries) > m.maxEntries {
		m.evictOldestLocked()
	}
}

func (m *memoryTier) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, entry := range m.entries {
		if first || entry.LastAccessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.LastAccessedAt
			first = false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// removeExpired deletes all entries past their TTL and returns how
// many were removed.
func (m *memoryTier) removeExpired(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if entry.expired(now, ttl) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) byteSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var size int64
	for _, entry := range m.entries {
		size += int64(len(entry.Key) + len(entry.Payload))
	}
	return size
}
