package memory

import (
	"context"
	"sync"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// PoolStore is an in-memory storage.PoolStore.
type PoolStore struct {
	mu    sync.RWMutex
	pools map[string]*domain.PoolRecord
}

// NewPoolStore creates an empty in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{pools: make(map[string]*domain.PoolRecord)}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Upsert inserts a pool record, preserving first_seen_ts and merging only
// non-null optional fields on conflict.
func (s *PoolStore) Upsert(ctx context.Context, p *domain.PoolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pools[p.Mint]
	if !ok {
		cp := *p
		s.pools[p.Mint] = &cp
		return nil
	}

	if p.LiqUSD != nil {
		v := *p.LiqUSD
		existing.LiqUSD = &v
	}
	if p.FDVUSD != nil {
		v := *p.FDVUSD
		existing.FDVUSD = &v
	}
	return nil
}

// GetByMint retrieves a pool record. Returns ErrNotFound if absent.
func (s *PoolStore) GetByMint(ctx context.Context, mint string) (*domain.PoolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
