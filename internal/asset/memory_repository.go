package asset

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Asset
}

// NewMemoryRepository constructs an in-memory asset catalog for tests and
// development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Asset)}
}

func (r *memoryRepository) Ensure(_ context.Context, a Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[a.ID]; exists {
		return nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.storage[a.ID] = a
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.storage[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assets := make([]Asset, 0, len(r.storage))
	for _, a := range r.storage {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}
