package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-signal-pipeline/internal/domain"
	"solana-signal-pipeline/internal/storage"
)

// CatalogStore implements storage.CatalogStore using PostgreSQL.
type CatalogStore struct {
	pool *Pool
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(pool *Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CatalogStore = (*CatalogStore)(nil)

const upsertCatalogQuery = `
	INSERT INTO token_catalog (
		catalog_id, network, mint, symbol, name, price_usd, volume_24h, market_cap, fdv, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (catalog_id, network) DO UPDATE SET
		mint       = EXCLUDED.mint,
		symbol     = EXCLUDED.symbol,
		name       = EXCLUDED.name,
		price_usd  = EXCLUDED.price_usd,
		volume_24h = EXCLUDED.volume_24h,
		market_cap = EXCLUDED.market_cap,
		fdv        = EXCLUDED.fdv,
		updated_at = EXCLUDED.updated_at
`

// UpsertBatch upserts entries by (catalog_id, network) in one transaction.
// A failure on any row rolls back the whole batch; completed earlier
// batches are unaffected, which is what makes refresh write-through
// monotonic.
func (s *CatalogStore) UpsertBatch(ctx context.Context, entries []*domain.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx, upsertCatalogQuery,
			e.CatalogID, e.Network, e.Mint, e.Symbol, e.Name,
			e.PriceUSD, e.Volume24h, e.MarketCap, e.FDV, e.UpdatedAt,
		)
		if err != nil {
			return classify(fmt.Errorf("upsert catalog entry %s: %w", e.CatalogID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}

	return nil
}

// FreshEntries returns entries for a network with updated_at > since and a
// resolved mint.
func (s *CatalogStore) FreshEntries(ctx context.Context, network string, since int64) ([]*domain.CatalogEntry, error) {
	query := `
		SELECT catalog_id, network, mint, symbol, name, price_usd, volume_24h, market_cap, fdv, updated_at
		FROM token_catalog
		WHERE network = $1 AND updated_at > $2 AND mint <> '' AND mint <> $3
		ORDER BY volume_24h DESC
	`

	rows, err := s.pool.Query(ctx, query, network, since, domain.PlaceholderMint)
	if err != nil {
		return nil, classify(fmt.Errorf("query fresh catalog entries: %w", err))
	}
	defer rows.Close()

	return scanCatalogEntries(rows)
}

// GetByMint retrieves an entry by mint. Returns ErrNotFound if absent.
func (s *CatalogStore) GetByMint(ctx context.Context, mint string) (*domain.CatalogEntry, error) {
	query := `
		SELECT catalog_id, network, mint, symbol, name, price_usd, volume_24h, market_cap, fdv, updated_at
		FROM token_catalog
		WHERE mint = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var e domain.CatalogEntry
	err := s.pool.QueryRow(ctx, query, mint).Scan(
		&e.CatalogID, &e.Network, &e.Mint, &e.Symbol, &e.Name,
		&e.PriceUSD, &e.Volume24h, &e.MarketCap, &e.FDV, &e.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, classify(fmt.Errorf("get catalog entry by mint: %w", err))
	}

	return &e, nil
}

// DeleteStale removes entries with updated_at < before.
func (s *CatalogStore) DeleteStale(ctx context.Context, before int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_catalog WHERE updated_at < $1`, before)
	if err != nil {
		return 0, classify(fmt.Errorf("delete stale catalog entries: %w", err))
	}
	return tag.RowsAffected(), nil
}

// scanCatalogEntries scans multiple rows into a slice of CatalogEntry.
func scanCatalogEntries(rows pgx.Rows) ([]*domain.CatalogEntry, error) {
	var entries []*domain.CatalogEntry

	for rows.Next() {
		var e domain.CatalogEntry
		err := rows.Scan(
			&e.CatalogID, &e.Network, &e.Mint, &e.Symbol, &e.Name,
			&e.PriceUSD, &e.Volume24h, &e.MarketCap, &e.FDV, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate catalog rows: %w", err))
	}

	return entries, nil
}
