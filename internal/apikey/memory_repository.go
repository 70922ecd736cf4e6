package apikey

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu   sync.Mutex
	keys map[string]Key
}

// NewMemoryRepository returns a process-local Repository. One mutex stands in
// for the per-user row lock.
func NewMemoryRepository() Repository {
	return &memoryRepository{keys: make(map[string]Key)}
}

func (r *memoryRepository) usable(userID string, now time.Time) int {
	n := 0
	for _, k := range r.keys {
		if k.UserID == userID && k.Usable(now) {
			n++
		}
	}
	return n
}

func (r *memoryRepository) CreateWithLimit(_ context.Context, key Key, limit int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usable(key.UserID, now) >= limit {
		return limitReached(limit)
	}
	r.keys[key.ID] = key
	return nil
}

func (r *memoryRepository) Rollover(_ context.Context, userID, oldID string, limit int, now time.Time, next func(old Key) (Key, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.keys[oldID]
	if !ok || old.UserID != userID {
		return ErrKeyNotFound
	}
	successor, err := next(old)
	if err != nil {
		return err
	}
	if r.usable(userID, now) >= limit {
		return limitReached(limit)
	}
	old.Active = false
	old.UpdatedAt = now
	r.keys[oldID] = old
	r.keys[successor.ID] = successor
	return nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Key, 0)
	for _, k := range r.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) FindByPrefix(_ context.Context, prefix string) ([]Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Key, 0, 1)
	for _, k := range r.keys {
		if k.Prefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *memoryRepository) Deactivate(_ context.Context, userID, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.UserID != userID {
		return ErrKeyNotFound
	}
	k.Active = false
	k.UpdatedAt = now
	r.keys[id] = k
	return nil
}
