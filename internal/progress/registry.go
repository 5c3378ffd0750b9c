package progress

import (
	"context"
	"sort"
	"sync"
)

// Registry hands out one Store per user, loading each lazily
type Registry struct {
	blobs BlobStore
	opts  []Option

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a registry over blobs. opts apply to every Store.
func NewRegistry(blobs BlobStore, opts ...Option) *Registry {
	return &Registry{
		blobs:  blobs,
		opts:   opts,
		stores: make(map[string]*Store),
	}
}

// Get returns the store for userID, opening it on first use
func (r *Registry) Get(ctx context.Context, userID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[userID]; ok {
		return s, nil
	}

	s, err := Open(ctx, userID, r.blobs, r.opts...)
	if err != nil {
		return nil, err
	}
	r.stores[userID] = s
	return s, nil
}

// Loaded returns the ids of users with an open store
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Users returns every user with persisted progress
func (r *Registry) Users(ctx context.Context) ([]string, error) {
	ids, err := r.blobs.Keys(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
