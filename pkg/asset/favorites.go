package asset

import (
	"context"
	"sync"

	"peachcash/pkg/kv"
)

const favoritesKey = "crypto_favorites"

// Favorites is the set of crypto ids the user starred, kept in insertion order
type Favorites struct {
	store kv.KV
	mu    sync.Mutex
}

func NewFavorites(store kv.KV) *Favorites {
	return &Favorites{store: store}
}

func (f *Favorites) List(ctx context.Context) (ids []string, err error) {
	_, err = f.store.Get(ctx, favoritesKey, &ids)
	return
}

func (f *Favorites) IsFavorite(ctx context.Context, id string) (bool, error) {
	ids, err := f.List(ctx)
	if err != nil {
		return false, err
	}
	for _, fav := range ids {
		if fav == id {
			return true, nil
		}
	}
	return false, nil
}

// Toggle adds id when absent and removes it otherwise, it returns whether id is now a favorite
func (f *Favorites) Toggle(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids, err := f.List(ctx)
	if err != nil {
		return false, err
	}

	kept := make([]string, 0, len(ids)+1)
	for _, fav := range ids {
		if fav != id {
			kept = append(kept, fav)
		}
	}
	on := len(kept) == len(ids)
	if on {
		kept = append(kept, id)
	}

	if err := f.store.Set(ctx, favoritesKey, kept); err != nil {
		return false, err
	}
	return on, nil
}

func (f *Favorites) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.Delete(ctx, favoritesKey)
}
