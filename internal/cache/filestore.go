package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"histlens/internal/logging"
)

// StoreFileName is the persistent tier's on-disk file name.
const StoreFileName = "analysis_cache.json.gz"

// fileStore is the persistent cache tier: a single gzip-compressed
// JSON file mirrored in memory. All disk writes go through one writer
// goroutine so concurrent Sets can never corrupt the file; reads are
// served from the mirror and may race a pending write (last writer
// wins, acceptable for a best-effort cache).
//
// Every I/O failure degrades to a cache miss. The store never returns
// errors to callers on the request path.
type fileStore struct {
	path       string
	maxEntries int
	logger     *logging.Logger

	mu     sync.Mutex
	mirror map[string]*Entry

	flush chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

func openFileStore(dir string, maxEntries int, logger *logging.Logger) *fileStore {
	s := &fileStore{
		path:       filepath.Join(dir, StoreFileName),
		maxEntries: maxEntries,
		logger:     logger,
		mirror:     make(map[string]*Entry),
		flush:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.load()

	s.wg.Add(1)
	go s.writerLoop()

	return s
}

// load reads the persisted entry list. A missing, truncated or
// corrupt file leaves the store empty.
func (s *fileStore) load() {
	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to open persistent cache file", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
		}
		return
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		s.logger.Warn("Persistent cache file is not valid gzip, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}
	defer func() { _ = zr.Close() }()

	data, err := io.ReadAll(zr)
	if err != nil {
		s.logger.Warn("Failed to read persistent cache file, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("Persistent cache file is corrupt, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return
	}

	for _, entry := range entries {
		if entry.Key == "" {
			continue
		}
		s.mirror[entry.Key] = entry
	}
}

func (s *fileStore) writerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.flush:
			s.writeBack()
		case <-s.done:
			s.writeBack()
			return
		}
	}
}

// scheduleFlush requests a write-back without blocking the caller.
func (s *fileStore) scheduleFlush() {
	select {
	case s.flush <- struct{}{}:
	default:
		// A flush is already pending; it will pick up this change.
	}
}

// writeBack snapshots the mirror, ranks entries by last access and
// drops the tail beyond maxEntries, then writes atomically via a
// temp file rename.
func (s *fileStore) writeBack() {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.mirror))
	for _, entry := range s.mirror {
		entries = append(entries, entry.clone())
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessedAt.After(entries[j].LastAccessedAt)
	})
	if len(entries) > s.maxEntries {
		dropped := entries[s.maxEntries:]
		entries = entries[:s.maxEntries]
		s.mu.Lock()
		for _, entry := range dropped {
			delete(s.mirror, entry.Key)
		}
		s.mu.Unlock()
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn("Failed to serialize persistent cache", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		s.logger.Warn("Failed to create persistent cache file", map[string]interface{}{
			"path":  tmp,
			"error": err.Error(),
		})
		return
	}

	zw := gzip.NewWriter(f)
	_, werr := zw.Write(data)
	if cerr := zw.Close(); werr == nil {
		werr = cerr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		s.logger.Warn("Failed to write persistent cache file", map[string]interface{}{
			"path":  tmp,
			"error": werr.Error(),
		})
		_ = os.Remove(tmp)
		return
	}

	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("Failed to replace persistent cache file", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		_ = os.Remove(tmp)
	}
}

func (s *fileStore) get(key string, now time.Time) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.mirror[key]
	if !ok {
		return nil, false
	}
	entry.LastAccessedAt = now
	entry.AccessCount++
	return entry.clone(), true
}

func (s *fileStore) put(entry *Entry) {
	s.mu.Lock()
	s.mirror[entry.Key] = entry.clone()
	s.mu.Unlock()
	s.scheduleFlush()
}

func (s *fileStore) delete(key string) {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()
	s.scheduleFlush()
}

func (s *fileStore) clear() {
	s.mu.Lock()
	s.mirror = make(map[string]*Entry)
	s.mu.Unlock()
	s.scheduleFlush()
}

func (s *fileStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mirror)
}

func (s *fileStore) byteSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var size int64
	for _, entry := range s.mirror {
		size += int64(len(entry.Key) + len(entry.Payload))
	}
	return size
}

func (s *fileStore) removeExpired(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	removed := 0
	for key, entry := range s.mirror {
		if entry.expired(now, ttl) {
			delete(s.mirror, key)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.scheduleFlush()
	}
	return removed
}

// newestFirst returns up to limit non-expired entries ordered by most
// recent access, used for fast-tier pre-warming on startup.
func (s *fileStore) newestFirst(limit int, now time.Time, ttl time.Duration) []*Entry {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.mirror))
	for _, entry := range s.mirror {
		if !entry.expired(now, ttl) {
			entries = append(entries, entry.clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessedAt.After(entries[j].LastAccessedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// close stops the writer after a final write-back.
func (s *fileStore) close() {
	close(s.done)
	s.wg.Wait()
}
