// Package memory provides in-memory store implementations used in tests
// and in --use-memory mode. Semantics mirror the Postgres stores.
package memory

import (
	"context"
	"sort"
	"sync"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// CatalogStore is an in-memory storage.CatalogStore.
type CatalogStore struct {
	mu      sync.RWMutex
	entries map[catalogKey]*domain.CatalogEntry
}

type catalogKey struct {
	catalogID string
	network   string
}

// NewCatalogStore creates an empty in-memory catalog store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{entries: make(map[catalogKey]*domain.CatalogEntry)}
}

// Compile-time interface check.
var _ storage.CatalogStore = (*CatalogStore)(nil)

// UpsertBatch upserts all entries; the in-memory variant is trivially atomic.
func (s *CatalogStore) UpsertBatch(ctx context.Context, entries []*domain.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		cp := *e
		s.entries[catalogKey{e.CatalogID, e.Network}] = &cp
	}
	return nil
}

// FreshEntries returns entries for a network with updated_at > since and a
// resolved mint, ordered by volume descending.
func (s *CatalogStore) FreshEntries(ctx context.Context, network string, since int64) ([]*domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CatalogEntry
	for _, e := range s.entries {
		if e.Network != network || e.UpdatedAt <= since {
			continue
		}
		if e.Mint == "" || e.Mint == domain.PlaceholderMint {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Volume24h > out[j].Volume24h })
	return out, nil
}

// GetByMint retrieves the most recently updated entry for a mint.
func (s *CatalogStore) GetByMint(ctx context.Context, mint string) (*domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.CatalogEntry
	for _, e := range s.entries {
		if e.Mint != mint {
			continue
		}
		if best == nil || e.UpdatedAt > best.UpdatedAt {
			best = e
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// DeleteStale removes entries with updated_at < before.
func (s *CatalogStore) DeleteStale(ctx context.Context, before int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, e := range s.entries {
		if e.UpdatedAt < before {
			delete(s.entries, k)
			deleted++
		}
	}
	return deleted, nil
}
