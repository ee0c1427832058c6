package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval bounds how long expired windows linger in memory.
const DefaultSweepInterval = 5 * time.Minute

// MemoryStore keeps windows in a process-local map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, identifier string, cfg Config, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[identifier]
	if !exists {
		e = &entry{}
		s.entries[identifier] = e
	}
	return apply(e, exists, cfg, now), nil
}

// Sweep drops every window whose reset time has passed and returns how many went.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.resetTime) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeper sweeps on every tick until ctx is cancelled. Call in a goroutine.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration, now func() time.Time, onSweep func(removed int)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep(now())
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}
