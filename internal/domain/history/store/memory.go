package store

import (
	"context"
	"sync"

	"formula-ocr-server/internal/domain/history/model"
)

// memoryStore keeps the most recent records in a fixed size ring.
type memoryStore struct {
	mu       sync.RWMutex
	ring     []model.Record
	next     int
	count    int
	index    map[string]int
	total    int64
	capacity int
}

// NewMemory creates an in-process history store.
func NewMemory(cfg Config) Store {
	capacity := capacityOf(cfg)
	return &memoryStore{
		ring:     make([]model.Record, capacity),
		index:    make(map[string]int, capacity),
		capacity: capacity,
	}
}

func (s *memoryStore) Save(_ context.Context, record model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.index[record.ID]; ok {
		s.ring[pos] = record
		return nil
	}

	if s.count == s.capacity {
		delete(s.index, s.ring[s.next].ID)
	} else {
		s.count++
	}
	s.ring[s.next] = record
	s.index[record.ID] = s.next
	s.next = (s.next + 1) % s.capacity
	s.total++
	return nil
}

func (s *memoryStore) Recent(_ context.Context, limit int) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]model.Record, 0, limit)
	for i := 1; i <= limit; i++ {
		pos := (s.next - i + s.capacity) % s.capacity
		out = append(out, s.ring[pos])
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return model.Record{}, ErrNotFound
	}
	return s.ring[pos], nil
}

func (s *memoryStore) Stats(context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"type":     DriverMemory,
		"stored":   s.count,
		"capacity": s.capacity,
		"total":    s.total,
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
