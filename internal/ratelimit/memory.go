package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in a process-local map. Restarting the process
// resets every counter.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, identifier string, limit int, window time.Duration, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	entry, ok := s.entries[identifier]
	if !ok {
		entry = &Entry{Count: 1, ResetTime: now.Add(window)}
		s.entries[identifier] = entry
		return Result{Allowed: true, Remaining: limit - 1, ResetTime: entry.ResetTime}, nil
	}

	if entry.Count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetTime: entry.ResetTime}, nil
	}

	entry.Count++
	return Result{Allowed: true, Remaining: limit - entry.Count, ResetTime: entry.ResetTime}, nil
}

// Sweep removes every entry whose window has elapsed at now and returns how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, entry := range s.entries {
		if !now.Before(entry.ResetTime) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live and not-yet-swept entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns a copy of the entry for identifier, if any.
func (s *MemoryStore) Get(identifier string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identifier]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// RunSweeper sweeps on every tick until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
