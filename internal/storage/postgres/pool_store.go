package postgres

import (
	"context"
	"fmt"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Upsert inserts a pool record. On conflict first_seen_ts is preserved and
// only non-null liquidity/FDV fields are updated.
func (s *PoolStore) Upsert(ctx context.Context, p *domain.PoolRecord) error {
	query := `
		INSERT INTO pools (mint, first_seen_ts, liq_usd, fdv_usd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mint) DO UPDATE SET
			liq_usd = COALESCE(EXCLUDED.liq_usd, pools.liq_usd),
			fdv_usd = COALESCE(EXCLUDED.fdv_usd, pools.fdv_usd)
	`

	_, err := s.pool.Exec(ctx, query, p.Mint, p.FirstSeenTS, p.LiqUSD, p.FDVUSD)
	if err != nil {
		return classify(fmt.Errorf("upsert pool: %w", err))
	}
	return nil
}

// GetByMint retrieves a pool record. Returns ErrNotFound if absent.
func (s *PoolStore) GetByMint(ctx context.Context, mint string) (*domain.PoolRecord, error) {
	query := `SELECT mint, first_seen_ts, liq_usd, fdv_usd FROM pools WHERE mint = $1`

	var p domain.PoolRecord
	err := s.pool.QueryRow(ctx, query, mint).Scan(&p.Mint, &p.FirstSeenTS, &p.LiqUSD, &p.FDVUSD)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, classify(fmt.Errorf("get pool by mint: %w", err))
	}

	return &p, nil
}
