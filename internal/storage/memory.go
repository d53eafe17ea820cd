package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps watches in process memory. Used by tests and simulations.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	watches map[int64]*Watch
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watches: make(map[int64]*Watch)}
}

func (s *MemoryStore) CreateWatch(_ context.Context, w NewWatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.watches[s.nextID] = &Watch{
		ID:        s.nextID,
		Owner:     w.Owner,
		Symbol:    w.Symbol,
		AssetRef:  w.AssetRef,
		Direction: w.Direction,
		Target:    w.Target,
		Active:    true,
		CreatedAt: w.createdAt(),
	}
	return s.nextID, nil
}

func (s *MemoryStore) ListWatchesForOwner(_ context.Context, owner string) ([]Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Watch, 0)
	for _, w := range s.watches {
		if w.Owner == owner {
			out = append(out, copyWatch(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListActiveWatches(_ context.Context) ([]Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Watch, 0)
	for _, w := range s.watches {
		if w.Active {
			out = append(out, copyWatch(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeactivateWatch(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.watches[id]; ok {
		w.Active = false
	}
	return nil
}

func (s *MemoryStore) ClaimTrigger(_ context.Context, id int64, price decimal.Decimal, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.watches[id]
	if !ok || !w.Active {
		return false, nil
	}
	triggeredAt := at.UTC()
	w.Active = false
	w.TriggeredAt = &triggeredAt
	w.TriggeredPrice = decimal.NewNullDecimal(price)
	return true, nil
}

func copyWatch(w *Watch) Watch {
	c := *w
	if w.TriggeredAt != nil {
		at := *w.TriggeredAt
		c.TriggeredAt = &at
	}
	return c
}

var _ WatchStore = (*MemoryStore)(nil)
