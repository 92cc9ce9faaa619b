package catalog

import (
	"sync"

	"github.com/signalsfoundry/mission-pnt/model"
)

// SizeRecorder receives catalog size updates.
type SizeRecorder interface {
	SetSize(n int)
}

// Store holds the current catalog behind a mutex. The engine reads one
// stable snapshot per cycle; the refresher may swap the contents at any
// time between cycles.
type Store struct {
	mu      sync.RWMutex
	entries []model.TLE
	source  string

	subs   map[int]func(int)
	nextID int

	metrics SizeRecorder
}

// StoreOption customises Store construction.
type StoreOption func(*Store)

// WithMetricsRecorder attaches an optional recorder for the catalog size.
func WithMetricsRecorder(m SizeRecorder) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{subs: make(map[int]func(int))}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Snapshot returns a copy of the current entries and their provenance.
// The copy is the caller's to keep; later Replace calls cannot mutate it.
func (s *Store) Snapshot() ([]model.TLE, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]model.TLE, len(s.entries))
	copy(entries, s.entries)
	return entries, s.source
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Replace swaps the catalog contents and notifies subscribers with the new
// size. Callbacks run outside the lock so a slow subscriber cannot stall
// concurrent readers.
func (s *Store) Replace(entries []model.TLE, source string) {
	owned := make([]model.TLE, len(entries))
	copy(owned, entries)

	s.mu.Lock()
	s.entries = owned
	s.source = source
	subs := make([]func(int), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetSize(len(owned))
	}
	for _, fn := range subs {
		fn(len(owned))
	}
}

// Subscribe registers a callback invoked with the entry count after every
// Replace. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(int)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
