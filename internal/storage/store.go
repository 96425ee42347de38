package storage

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

var (
	// ErrKeyNotFound is returned when a key doesn't exist (or has expired).
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned when a create-only write finds the key.
	ErrKeyExists = errors.New("key already exists")
	// ErrCompareFailed is returned when PrevValue or PrevIndex don't match.
	ErrCompareFailed = errors.New("compare failed")
	// ErrNotFile is returned when a single-key write or delete targets a
	// directory: the root, or a key with live keys below it.
	ErrNotFile = errors.New("not a file")
)

// Entry is one stored key with its modification history.
type Entry struct {
	Key           string
	Value         []byte
	CreatedIndex  uint64
	ModifiedIndex uint64
	// Expires is zero for keys without a TTL.
	Expires time.Time
}

// Precondition guards a write or delete. Zero value means unconditional.
type Precondition struct {
	// PrevExist, when set, requires the key to exist (true) or not (false).
	PrevExist *bool
	// PrevValue requires the current value to equal it.
	PrevValue *string
	// PrevIndex requires the current ModifiedIndex to equal it. Zero skips
	// the check; no key ever has index zero.
	PrevIndex uint64
}

func (p Precondition) compares() bool {
	return p.PrevValue != nil || p.PrevIndex != 0
}

// Store is a versioned key-value keyspace. Every successful write or delete
// bumps a single store-wide index.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// Get returns a live entry or ErrKeyNotFound.
	Get(key string) (Entry, error)

	// List returns the live entries at or below prefix, sorted by key.
	List(prefix string) []Entry

	// Put writes value under key. ttl of zero means no expiry. prev is the
	// entry that was replaced, nil if the key was new.
	Put(key string, value []byte, ttl time.Duration, pre Precondition) (prev *Entry, cur Entry, err error)

	// Delete removes key and returns the removed entry.
	Delete(key string, pre Precondition) (Entry, error)

	// DeleteTree removes key and every key below it as one change and
	// returns the removed entries sorted by key.
	DeleteTree(key string) ([]Entry, error)

	// Index returns the index of the most recent change.
	Index() uint64

	// Stats returns storage statistics
	Stats() StoreStats
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys  int    // Number of live keys
	Bytes int    // Total size of all live values in bytes
	Index uint64 // Current store index
}

// MemoryStore implements Store with an in-memory map.
// Expired keys read as absent at once and are removed from the map by the
// next write or delete that touches them.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]Entry
	index uint64
	now   func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
		now:  time.Now,
	}
}

func (m *MemoryStore) expired(e Entry) bool {
	return !e.Expires.IsZero() && !m.now().Before(e.Expires)
}

func (m *MemoryStore) live(key string) (Entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return Entry{}, false
	}
	if m.expired(e) {
		return Entry{}, false
	}
	return e, true
}

// evict drops key if it has expired. Callers hold the write lock.
func (m *MemoryStore) evict(key string) {
	if e, ok := m.data[key]; ok && m.expired(e) {
		delete(m.data, key)
	}
}

// isDir reports whether key is the root or has live keys below it.
// Callers hold the write lock; expired keys met on the way are evicted.
func (m *MemoryStore) isDir(key string) bool {
	if key == "/" {
		return true
	}
	dir := key + "/"
	found := false
	for k, e := range m.data {
		if !strings.HasPrefix(k, dir) {
			continue
		}
		if m.expired(e) {
			delete(m.data, k)
			continue
		}
		found = true
	}
	return found
}

// Get returns a copy of the entry so callers cannot modify stored bytes.
func (m *MemoryStore) Get(key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	return e.clone(), nil
}

// List returns copies of the live entries at or below prefix.
func (m *MemoryStore) List(prefix string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := strings.TrimSuffix(prefix, "/") + "/"
	out := make([]Entry, 0)
	for key := range m.data {
		if key != prefix && !strings.HasPrefix(key, dir) {
			continue
		}
		if e, ok := m.live(key); ok {
			out = append(out, e.clone())
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

// check evicts key if expired, refuses directories and tests pre.
// Callers hold the write lock.
func (m *MemoryStore) check(key string, pre Precondition) (Entry, bool, error) {
	m.evict(key)
	cur, exists := m.data[key]
	if !exists && m.isDir(key) {
		return cur, exists, ErrNotFile
	}
	if pre.PrevExist != nil {
		if *pre.PrevExist && !exists {
			return cur, exists, ErrKeyNotFound
		}
		if !*pre.PrevExist && exists {
			return cur, exists, ErrKeyExists
		}
	}
	if pre.compares() {
		if !exists {
			return cur, exists, ErrKeyNotFound
		}
		if pre.PrevValue != nil && *pre.PrevValue != string(cur.Value) {
			return cur, exists, ErrCompareFailed
		}
		if pre.PrevIndex != 0 && pre.PrevIndex != cur.ModifiedIndex {
			return cur, exists, ErrCompareFailed
		}
	}
	return cur, exists, nil
}

// Put stores a copy of value.
func (m *MemoryStore) Put(key string, value []byte, ttl time.Duration, pre Precondition) (*Entry, Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists, err := m.check(key, pre)
	if err != nil {
		return nil, Entry{}, err
	}

	m.index++
	stored := Entry{
		Key:           key,
		Value:         append([]byte(nil), value...),
		CreatedIndex:  m.index,
		ModifiedIndex: m.index,
	}
	if ttl > 0 {
		stored.Expires = m.now().Add(ttl)
	}

	var prev *Entry
	if exists {
		stored.CreatedIndex = old.CreatedIndex
		p := old.clone()
		prev = &p
	}
	m.data[key] = stored
	return prev, stored.clone(), nil
}

// Delete removes key if pre holds.
func (m *MemoryStore) Delete(key string, pre Precondition) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, exists, err := m.check(key, pre)
	if err != nil {
		return Entry{}, err
	}
	if !exists {
		return Entry{}, ErrKeyNotFound
	}

	m.index++
	delete(m.data, key)
	return old.clone(), nil
}

// DeleteTree removes key and everything below it, bumping the index once.
// Deleting the root of an empty store succeeds with nothing removed.
func (m *MemoryStore) DeleteTree(key string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := strings.TrimSuffix(key, "/") + "/"
	var removed []Entry
	for k, e := range m.data {
		if k != key && !strings.HasPrefix(k, dir) {
			continue
		}
		delete(m.data, k)
		if !m.expired(e) {
			removed = append(removed, e)
		}
	}
	if len(removed) == 0 {
		if key == "/" {
			return nil, nil
		}
		return nil, ErrKeyNotFound
	}

	m.index++
	slices.SortFunc(removed, func(a, b Entry) int {
		return strings.Compare(a.Key, b.Key)
	})
	return removed, nil
}

// Index returns the index of the most recent change.
func (m *MemoryStore) Index() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := StoreStats{Index: m.index}
	for key := range m.data {
		if e, ok := m.live(key); ok {
			stats.Keys++
			stats.Bytes += len(e.Value)
		}
	}
	return stats
}

func (e Entry) clone() Entry {
	e.Value = append([]byte(nil), e.Value...)
	return e
}
