package export

import (
	"context"
	"sync"
)

// MemorySink keeps exported objects in a map. Used by package tests and by
// local development when no durable sink is configured.
type MemorySink struct {
	mu      sync.RWMutex
	objects map[string][]byte
	writes  map[string]int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		objects: make(map[string][]byte),
		writes:  make(map[string]int),
	}
}

func (s *MemorySink) Export(_ context.Context, key string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), payload...)
	s.writes[key]++
	return Checksum(payload), nil
}

func (s *MemorySink) Verify(_ context.Context, key string, checksum string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return ErrObjectNotFound
	}
	if Checksum(data) != checksum {
		return ErrChecksumMismatch
	}
	return nil
}

// Len reports how many distinct objects the sink holds.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}

// Writes reports how many times key has been written.
func (s *MemorySink) Writes(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.writes[key]
}
