package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is an in-process key-value store with per-key expiry
type Store struct {
	entries map[string]entry
	mu      sync.Mutex
	now     func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a store that reads the current time from now
func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[string]entry),
		now:     now,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, false, nil
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, true, nil
}

func (s *Store) SetWithExpiry(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e

	return nil
}

func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if e, ok := s.entries[key]; ok && !e.expired(s.now()) {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %q is not an integer", key)
		}
		n = parsed
	}

	n++
	s.entries[key] = entry{value: []byte(strconv.FormatInt(n, 10))}

	return n, nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
