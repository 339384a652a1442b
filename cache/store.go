package cache

import (
	"bytes"
	"container/list"
	"sync"
	"time"
)

// Config holds the parameters of a single Store.
type Config struct {
	// Name labels the store in metrics.
	Name string

	// MaxEntries bounds the number of live entries. When a Set of a new
	// key would exceed it, the least-recently-touched entry is evicted
	// first. Zero or negative means unbounded.
	MaxEntries int

	// TTL is the maximum entry age. An entry older than TTL is treated
	// as absent and dropped on access. Zero or negative disables expiry.
	//
	// Age is measured against wall-clock time, so host sleep or clock
	// changes shift effective lifetimes. Accepted limitation.
	TTL time.Duration

	// Keyspace, when set, namespaces every physical key with the shared
	// global version. Bumping the version orphans all prior entries.
	Keyspace *Keyspace

	// Metrics, when set, receives hit/miss/eviction/expiration counts.
	Metrics *Metrics
}

// entry is one cached value with its insertion timestamp.
type entry struct {
	key      string
	value    []byte
	storedAt time.Time
}

// Store is a bounded key-value cache with TTL expiry and exact
// least-recently-used eviction. All methods are safe for concurrent use.
//
// Recency is tracked with a doubly-linked list plus a hash index, so
// Get, Set, Delete and eviction are all O(1). Front of the list is the
// most recently touched entry.
type Store struct {
	mu  sync.Mutex
	cfg Config

	ll      *list.List
	index   map[string]*list.Element
	nowFunc func() time.Time // for testing; defaults to time.Now
}

// New creates a Store with the given configuration.
func New(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		ll:      list.New(),
		index:   make(map[string]*list.Element),
		nowFunc: time.Now,
	}
}

// Get retrieves the value stored under the logical key. The boolean
// reports a live hit. Expired entries are evicted on the spot; hits move
// the entry to the most-recent position.
func (s *Store) Get(logical string) ([]byte, bool) {
	key := s.physical(logical)

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[key]
	if !ok {
		s.cfg.Metrics.miss(s.cfg.Name)
		return nil, false
	}

	ent := el.Value.(*entry)
	if s.expired(ent) {
		s.remove(el)
		s.cfg.Metrics.expiration(s.cfg.Name)
		s.cfg.Metrics.miss(s.cfg.Name)
		return nil, false
	}

	s.ll.MoveToFront(el)
	s.cfg.Metrics.hit(s.cfg.Name)
	return bytes.Clone(ent.value), true
}

// Set stores value under the logical key at the most-recent position.
// When the store is at capacity and the key is new, the least-recently
// touched entry is evicted first.
func (s *Store) Set(logical string, value []byte) {
	key := s.physical(logical)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[key]; ok {
		ent := el.Value.(*entry)
		ent.value = bytes.Clone(value)
		ent.storedAt = s.now()
		s.ll.MoveToFront(el)
		return
	}

	if s.cfg.MaxEntries > 0 && s.ll.Len() >= s.cfg.MaxEntries {
		if oldest := s.ll.Back(); oldest != nil {
			s.remove(oldest)
			s.cfg.Metrics.eviction(s.cfg.Name)
		}
	}

	el := s.ll.PushFront(&entry{
		key:      key,
		value:    bytes.Clone(value),
		storedAt: s.now(),
	})
	s.index[key] = el
}

// Delete removes the logical key. Removing an absent key is a no-op.
func (s *Store) Delete(logical string) {
	key := s.physical(logical)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[key]; ok {
		s.remove(el)
	}
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ll.Init()
	s.index = make(map[string]*list.Element)
}

// Len returns the number of entries currently held, including entries
// whose TTL has passed but which have not been touched since.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Name returns the store's metric label.
func (s *Store) Name() string { return s.cfg.Name }

// physical maps a logical key into the current keyspace version.
func (s *Store) physical(logical string) string {
	if s.cfg.Keyspace == nil {
		return logical
	}
	return s.cfg.Keyspace.Key(logical)
}

// remove unlinks el from both structures. Must be called with s.mu held.
func (s *Store) remove(el *list.Element) {
	s.ll.Remove(el)
	delete(s.index, el.Value.(*entry).key)
}

func (s *Store) expired(ent *entry) bool {
	if s.cfg.TTL <= 0 {
		return false
	}
	return s.now().Sub(ent.storedAt) > s.cfg.TTL
}

func (s *Store) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
