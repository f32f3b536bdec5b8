package store

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore is an in-process MetaStore. It backs the domain tests and small
// deployments that do not need durability.
type MemoryStore struct {
	mu   sync.Mutex
	data map[int64]map[string][]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[int64]map[string][]json.RawMessage),
	}
}

func (s *MemoryStore) Append(_ context.Context, eventID int64, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.data[eventID]
	if !ok {
		keys = make(map[string][]json.RawMessage)
		s.data[eventID] = keys
	}

	v := make(json.RawMessage, len(value))
	copy(v, value)
	keys[key] = append(keys[key], v)
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context, eventID int64, key string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.data[eventID][key]
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		c := make(json.RawMessage, len(v))
		copy(c, v)
		out[i] = c
	}
	return out, nil
}

func (s *MemoryStore) Remove(_ context.Context, eventID int64, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.data[eventID][key]
	for i, v := range values {
		if jsonEqual(v, value) {
			s.data[eventID][key] = append(values[:i:i], values[i+1:]...)
			if len(s.data[eventID][key]) == 0 {
				delete(s.data[eventID], key)
			}
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, eventID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data[eventID], key)
	return nil
}

func (s *MemoryStore) EventIDs(_ context.Context, key string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0)
	for eventID, keys := range s.data {
		if len(keys[key]) > 0 {
			ids = append(ids, eventID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) CountAll(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, keys := range s.data {
		n += int64(len(keys[key]))
	}
	return n, nil
}

// jsonEqual compares two JSON documents structurally, the same way Postgres
// compares jsonb values. Field order and whitespace do not matter.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
