// Package cache is a concurrency-safe in-memory TTL store for upstream
// responses. Values are stored as JSON bytes: Set marshals, Get unmarshals
// into the caller's destination, so no caller ever holds a reference into
// cache internals.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	defaultMaxEntries = 1000
	// cleanupPercent is the fill level, as a percentage of maxEntries, that
	// an insert-triggered cleanup evicts down to.
	cleanupPercent = 90
)

type entry struct {
	data      []byte
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expiredAt(t time.Time) bool {
	return !t.Before(e.createdAt.Add(e.ttl))
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries     int   `json:"entries"`
	MaxEntries  int   `json:"max_entries"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// Store is a size-bounded TTL cache. Expired entries are dropped lazily on
// read, by the periodic Sweep, and by the insert-triggered cleanup that also
// evicts the oldest entries when the store outgrows its ceiling.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxEntries int
	now        func() time.Time

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// New creates a Store holding at most maxEntries values.
// If maxEntries is <= 0, a default bound is applied.
func New(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Store{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get unmarshals the value stored under key into dst and reports whether a
// live entry existed. Expired entries are removed on the spot. An entry that
// no longer decodes is removed and reported as a miss.
func (s *Store) Get(key string, dst any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return false
	}
	if e.expiredAt(s.now()) {
		delete(s.entries, key)
		s.expirations++
		s.misses++
		return false
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		delete(s.entries, key)
		s.misses++
		return false
	}
	s.hits++
	return true
}

// Set stores v under key for ttl, replacing any previous entry. When the
// insert pushes the store past its ceiling, expired entries are swept and,
// if that is not enough, the oldest entries are evicted.
func (s *Store) Set(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal value for %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &entry{data: data, createdAt: s.now(), ttl: ttl}
	if len(s.entries) > s.maxEntries {
		s.cleanupLocked()
	}
	return nil
}

// Sweep removes every expired entry and returns how many were dropped.
// Called periodically by the scheduler.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) sweepLocked() int {
	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expiredAt(now) {
			delete(s.entries, key)
			removed++
		}
	}
	s.expirations += int64(removed)
	return removed
}

// cleanupLocked sweeps expired entries, then evicts oldest-first until the
// store is back at its cleanup threshold.
func (s *Store) cleanupLocked() {
	s.sweepLocked()

	threshold := s.maxEntries * cleanupPercent / 100
	if threshold < 1 {
		threshold = 1
	}
	if len(s.entries) <= threshold {
		return
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	oldest := make([]aged, 0, len(s.entries))
	for key, e := range s.entries {
		oldest = append(oldest, aged{key, e.createdAt})
	}
	sort.Slice(oldest, func(i, j int) bool {
		return oldest[i].createdAt.Before(oldest[j].createdAt)
	})

	evict := len(s.entries) - threshold
	for _, a := range oldest[:evict] {
		delete(s.entries, a.key)
	}
	s.evictions += int64(evict)
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:     len(s.entries),
		MaxEntries:  s.maxEntries,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
}
